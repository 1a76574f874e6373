package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrCircuitBreakerOpen 熔断期间调用被直接拒绝。
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig 熔断器配置。
type CircuitBreakerConfig struct {
	// MaxFailures 连续失败达到该次数后打开。
	MaxFailures int
	// Timeout 打开后的冷却时间，结束后进入半开。
	Timeout time.Duration
	// HalfOpenMaxCalls 半开期间放行的探测调用数。
	HalfOpenMaxCalls int
	// IsFailure 为 nil 时所有错误都计入失败。
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig 连续 5 次失败打开，冷却 60 秒。
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Minute, HalfOpenMaxCalls: 1}
}

// CircuitBreakerState 熔断器状态。
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitBreakerState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// BreakerSnapshot 熔断器的只读快照。
type BreakerSnapshot struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// CircuitBreaker 按连续失败次数熔断，冷却后放行少量探测调用。
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	probes   int // 半开期间已放行的调用
	passed   int // 半开期间已成功的调用
}

// NewCircuitBreaker 创建熔断器。name 用于日志与快照。
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	cfg := *config
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Execute 熔断打开时返回 ErrCircuitBreakerOpen 而不调用 fn。
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			return false
		}
		logger.Infow("Circuit breaker half-open", "breaker", cb.name)
		cb.state, cb.probes, cb.passed = StateHalfOpen, 0, 0
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxCalls {
			return false
		}
		cb.probes++
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))
	switch {
	case failed && cb.state == StateHalfOpen:
		logger.Warnw("Circuit breaker re-opened by failed probe", "breaker", cb.name, "error", err.Error())
		cb.trip()
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			logger.Warnw("Circuit breaker opened", "breaker", cb.name, "failures", cb.failures, "error", err.Error())
			cb.trip()
		}
	case cb.state == StateHalfOpen:
		cb.passed++
		if cb.passed >= cb.probes {
			logger.Infow("Circuit breaker closed", "breaker", cb.name)
			cb.state, cb.failures = StateClosed, 0
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// State 返回当前状态。冷却已结束但尚无调用时仍报告 open。
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot 返回当前快照。
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{Name: cb.name, State: cb.state.String(), Failures: cb.failures}
}

// Reset 回到关闭状态并清空计数。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state, cb.failures, cb.probes, cb.passed = StateClosed, 0, 0, 0
}
