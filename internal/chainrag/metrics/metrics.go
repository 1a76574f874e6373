// Package metrics 提供 chainrag 查询流水线的业务指标收集。
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every exported metric name.
const Namespace = "chainrag"

// Stage names used as metric labels.
var stageNames = []string{"embed", "retrieve", "reason", "synthesize"}

// 阶段耗时分桶，覆盖毫秒级检索到分钟级推理。
var stageBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// promSet 导出到 /metrics 的采集器，注册在实例私有的 Registry 上。
type promSet struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	rejected      prometheus.Counter
	inFlight      prometheus.Gauge
	queryDuration prometheus.Histogram

	stageDuration *prometheus.HistogramVec
	stageAttempts *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	stageTimeouts *prometheus.CounterVec

	tokens  *prometheus.CounterVec
	indexed *prometheus.CounterVec
}

func newPromSet(started time.Time) *promSet {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help}, labels)
	}

	p := &promSet{
		registry:      reg,
		queries:       counterVec("queries_total", "Queries admitted, by final outcome (completed or error code).", "outcome"),
		rejected:      f.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "queries_rejected_total", Help: "Queries rejected by admission control."}),
		inFlight:      f.NewGauge(prometheus.GaugeOpts{Namespace: Namespace, Name: "queries_in_flight", Help: "Queries currently executing."}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{Namespace: Namespace, Name: "query_duration_seconds", Help: "End to end query latency.", Buckets: stageBuckets}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Name: "stage_duration_seconds", Help: "Stage latency including retries.", Buckets: stageBuckets}, []string{"stage"}),
		stageAttempts: counterVec("stage_attempts_total", "External call attempts per stage.", "stage"),
		stageRetries:  counterVec("stage_retries_total", "Retries per stage.", "stage"),
		stageErrors:   counterVec("stage_errors_total", "Stage executions that failed after retries.", "stage"),
		stageTimeouts: counterVec("stage_timeouts_total", "Attempts that hit the stage timeout.", "stage"),
		tokens:        counterVec("tokens_total", "Model tokens consumed.", "kind"),
		indexed:       counterVec("indexed_total", "Documents and chunks written by ingestion.", "kind"),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: Namespace, Name: "uptime_seconds", Help: "Seconds since the process started."},
		func() float64 { return time.Since(started).Seconds() })

	// 预先创建各阶段序列，未发生的阶段也以 0 导出。
	for _, name := range stageNames {
		p.stageAttempts.WithLabelValues(name)
		p.stageRetries.WithLabelValues(name)
		p.stageErrors.WithLabelValues(name)
		p.stageTimeouts.WithLabelValues(name)
	}
	return p
}

// stageMetrics 单个阶段的指标。
type stageMetrics struct {
	calls    atomic.Uint64 // 阶段执行次数（含重试后的最终结果）
	attempts atomic.Uint64 // 外部调用尝试次数
	retries  atomic.Uint64 // 重试次数
	errors   atomic.Uint64 // 最终失败次数
	timeouts atomic.Uint64 // 单次尝试超时次数

	mu       sync.Mutex
	duration float64 // 总耗时（秒）
}

// Metrics 查询流水线业务指标。每个进程创建一个实例并显式传递。
type Metrics struct {
	// 查询指标
	queriesTotal    atomic.Uint64
	queriesFailed   atomic.Uint64
	queriesRejected atomic.Uint64 // 准入控制拒绝
	queriesCanceled atomic.Uint64
	inFlight        atomic.Int64

	// 最终状态计数，key 为错误码或 "completed"
	outcomesMu sync.Mutex
	outcomes   map[string]uint64

	stages map[string]*stageMetrics

	// token 计数
	tokensPrompt     atomic.Uint64
	tokensCompletion atomic.Uint64

	// 摄取指标
	documentsIndexed atomic.Uint64
	chunksIndexed    atomic.Uint64
	indexErrors      atomic.Uint64

	queryMu       sync.Mutex
	queryDuration float64

	startTime time.Time
	prom      *promSet
}

// New 创建指标实例。
func New() *Metrics {
	now := time.Now()
	m := &Metrics{
		outcomes:  make(map[string]uint64),
		stages:    make(map[string]*stageMetrics, len(stageNames)),
		startTime: now,
		prom:      newPromSet(now),
	}
	for _, name := range stageNames {
		m.stages[name] = &stageMetrics{}
	}
	return m
}

// stage 返回阶段计数器。未知阶段返回 false，调用方直接丢弃该次记录。
func (m *Metrics) stage(name string) (*stageMetrics, bool) {
	s, ok := m.stages[name]
	return s, ok
}

// QueryStarted 记录查询开始执行。
func (m *Metrics) QueryStarted() {
	m.queriesTotal.Add(1)
	m.inFlight.Add(1)
	m.prom.inFlight.Inc()
}

// QueryFinished 记录查询结束。outcome 为 "completed" 或错误码字符串。
func (m *Metrics) QueryFinished(outcome string, duration time.Duration, err error) {
	m.inFlight.Add(-1)
	if err != nil {
		m.queriesFailed.Add(1)
	}

	m.outcomesMu.Lock()
	m.outcomes[outcome]++
	m.outcomesMu.Unlock()

	m.queryMu.Lock()
	m.queryDuration += duration.Seconds()
	m.queryMu.Unlock()

	m.prom.inFlight.Dec()
	m.prom.queries.WithLabelValues(outcome).Inc()
	m.prom.queryDuration.Observe(duration.Seconds())
}

// RecordRejected 记录准入控制拒绝。
func (m *Metrics) RecordRejected() {
	m.queriesRejected.Add(1)
	m.prom.rejected.Inc()
}

// RecordCanceled 记录调用方取消。
func (m *Metrics) RecordCanceled() {
	m.queriesCanceled.Add(1)
}

// RecordStage 记录一个阶段的最终结果。
func (m *Metrics) RecordStage(name string, duration time.Duration, attempts int, err error) {
	s, ok := m.stage(name)
	if !ok {
		return
	}
	s.calls.Add(1)
	if attempts > 0 {
		s.attempts.Add(uint64(attempts))
		m.prom.stageAttempts.WithLabelValues(name).Add(float64(attempts))
	}
	if err != nil {
		s.errors.Add(1)
		m.prom.stageErrors.WithLabelValues(name).Inc()
	}
	s.mu.Lock()
	s.duration += duration.Seconds()
	s.mu.Unlock()
	m.prom.stageDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordRetry 记录一次阶段重试。
func (m *Metrics) RecordRetry(name string) {
	if s, ok := m.stage(name); ok {
		s.retries.Add(1)
		m.prom.stageRetries.WithLabelValues(name).Inc()
	}
}

// RecordTimeout 记录一次单阶段超时。
func (m *Metrics) RecordTimeout(name string) {
	if s, ok := m.stage(name); ok {
		s.timeouts.Add(1)
		m.prom.stageTimeouts.WithLabelValues(name).Inc()
	}
}

// RecordTokens 记录模型 token 消耗。
func (m *Metrics) RecordTokens(prompt, completion int) {
	if prompt > 0 {
		m.tokensPrompt.Add(uint64(prompt))
		m.prom.tokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokensCompletion.Add(uint64(completion))
		m.prom.tokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// RecordIndexing 记录摄取操作。
func (m *Metrics) RecordIndexing(documents, chunks int, err error) {
	if err != nil {
		m.indexErrors.Add(1)
		m.prom.indexed.WithLabelValues("error").Inc()
		return
	}
	m.documentsIndexed.Add(uint64(documents))
	m.chunksIndexed.Add(uint64(chunks))
	m.prom.indexed.WithLabelValues("document").Add(float64(documents))
	m.prom.indexed.WithLabelValues("chunk").Add(float64(chunks))
}

// InFlight 返回正在执行的查询数。
func (m *Metrics) InFlight() int64 {
	return m.inFlight.Load()
}

// Handler 以 Prometheus 文本格式导出本实例的采集器和 Go 运行时指标。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.prom.registry, promhttp.HandlerOpts{})
}

// Registry 返回私有的 Registry，便于在测试中直接采集。
func (m *Metrics) Registry() *prometheus.Registry { return m.prom.registry }

func (m *Metrics) outcomeSnapshot() map[string]uint64 {
	m.outcomesMu.Lock()
	defer m.outcomesMu.Unlock()
	out := make(map[string]uint64, len(m.outcomes))
	for k, v := range m.outcomes {
		out[k] = v
	}
	return out
}

// Stats 返回当前统计信息（用于 API）。
func (m *Metrics) Stats() map[string]any {
	stages := make(map[string]any, len(stageNames))
	for _, name := range stageNames {
		s := m.stages[name]
		s.mu.Lock()
		duration := s.duration
		s.mu.Unlock()

		calls := s.calls.Load()
		avg := 0.0
		if calls > 0 {
			avg = duration / float64(calls)
		}
		stages[name] = map[string]any{
			"calls":             calls,
			"attempts":          s.attempts.Load(),
			"retries":           s.retries.Load(),
			"errors":            s.errors.Load(),
			"timeouts":          s.timeouts.Load(),
			"avg_duration_secs": avg,
		}
	}

	return map[string]any{
		"queries": map[string]any{
			"total":     m.queriesTotal.Load(),
			"failed":    m.queriesFailed.Load(),
			"rejected":  m.queriesRejected.Load(),
			"canceled":  m.queriesCanceled.Load(),
			"in_flight": m.inFlight.Load(),
			"outcomes":  m.outcomeSnapshot(),
		},
		"stages": stages,
		"tokens": map[string]any{
			"prompt":     m.tokensPrompt.Load(),
			"completion": m.tokensCompletion.Load(),
		},
		"indexing": map[string]any{
			"documents_indexed": m.documentsIndexed.Load(),
			"chunks_indexed":    m.chunksIndexed.Load(),
			"errors":            m.indexErrors.Load(),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}
