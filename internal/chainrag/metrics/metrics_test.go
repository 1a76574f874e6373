package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLifecycle(t *testing.T) {
	m := New()

	m.QueryStarted()
	assert.EqualValues(t, 1, m.InFlight())
	m.QueryFinished("completed", 100*time.Millisecond, nil)

	m.QueryStarted()
	m.QueryFinished("2110001", 50*time.Millisecond, assert.AnError)

	assert.EqualValues(t, 0, m.InFlight())
	queries := m.Stats()["queries"].(map[string]any)
	assert.EqualValues(t, 2, queries["total"])
	assert.EqualValues(t, 1, queries["failed"])
	assert.Equal(t, map[string]uint64{"completed": 1, "2110001": 1}, queries["outcomes"])
}

func TestRecordStage(t *testing.T) {
	m := New()

	m.RecordStage("reason", 2*time.Second, 2, nil)
	m.RecordRetry("reason")
	m.RecordTimeout("reason")
	m.RecordStage("reason", time.Second, 1, assert.AnError)

	reason := m.Stats()["stages"].(map[string]any)["reason"].(map[string]any)
	assert.EqualValues(t, 2, reason["calls"])
	assert.EqualValues(t, 3, reason["attempts"])
	assert.EqualValues(t, 1, reason["retries"])
	assert.EqualValues(t, 1, reason["errors"])
	assert.EqualValues(t, 1, reason["timeouts"])
	assert.InDelta(t, 1.5, reason["avg_duration_secs"], 1e-9)
}

func TestUnknownStageIgnored(t *testing.T) {
	m := New()
	assert.NotPanics(t, func() {
		m.RecordStage("rerank", time.Second, 1, nil)
		m.RecordRetry("rerank")
	})
	assert.NotContains(t, m.Stats()["stages"], "rerank")
}

func TestHandler(t *testing.T) {
	m := New()
	m.QueryStarted()
	m.QueryFinished("completed", time.Second, nil)
	m.RecordStage("embed", 10*time.Millisecond, 1, nil)
	m.RecordRejected()
	m.RecordTokens(120, 30)
	m.RecordIndexing(2, 17, nil)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	out := w.Body.String()
	assert.Contains(t, out, "# TYPE chainrag_queries_total counter")
	assert.Contains(t, out, `chainrag_queries_total{outcome="completed"} 1`)
	assert.Contains(t, out, "chainrag_queries_rejected_total 1")
	assert.Contains(t, out, `chainrag_stage_attempts_total{stage="embed"} 1`)
	assert.Contains(t, out, `chainrag_stage_attempts_total{stage="synthesize"} 0`)
	assert.Contains(t, out, `chainrag_tokens_total{kind="prompt"} 120`)
	assert.Contains(t, out, `chainrag_indexed_total{kind="chunk"} 17`)
	assert.Contains(t, out, "go_goroutines")
}

func TestPromCounters(t *testing.T) {
	m := New()
	m.RecordRetry("reason")
	m.RecordRetry("reason")
	m.RecordTimeout("synthesize")

	assert.InDelta(t, 2, testutil.ToFloat64(m.prom.stageRetries.WithLabelValues("reason")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.prom.stageTimeouts.WithLabelValues("synthesize")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.prom.inFlight), 1e-9)
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.QueryStarted()
			m.RecordStage("retrieve", time.Millisecond, 1, nil)
			m.QueryFinished("completed", time.Millisecond, nil)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 0, m.InFlight())
	retrieve := m.Stats()["stages"].(map[string]any)["retrieve"].(map[string]any)
	assert.EqualValues(t, 50, retrieve["calls"])
}
