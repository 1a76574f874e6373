package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mwopts "github.com/kart-io/chainrag/pkg/options/middleware"
	"github.com/kart-io/chainrag/pkg/utils/json"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID_GeneratesULID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(*mwopts.NewRequestIDOptions()))

	var fromCtx, fromGin string
	r.GET("/t", func(c *gin.Context) {
		fromCtx = GetRequestID(c.Request.Context())
		fromGin = c.GetString(response.RequestIDKey)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))

	id := w.Header().Get(HeaderXRequestID)
	assert.Len(t, id, 26)
	assert.Equal(t, id, fromCtx)
	assert.Equal(t, id, fromGin)
}

func TestRequestID_ReusesIncomingHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(mwopts.RequestIDOptions{Header: "X-Request-ID", GeneratorType: "hex"}))
	r.GET("/t", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestNewHexID_Length(t *testing.T) {
	assert.Len(t, NewHexID(), 32)
	assert.NotEqual(t, NewULID(), NewULID())
}

func TestRecovery_ReturnsPanicEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(*mwopts.NewRecoveryOptions()), RequestID(*mwopts.NewRequestIDOptions()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["message"], "boom")
}

func TestAccessLogAndTracing_PassThrough(t *testing.T) {
	r := gin.New()
	r.Use(Tracing(), AccessLog(*mwopts.NewLoggerOptions()))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "up") })

	for _, path := range []string{"/ok", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(mwopts.BodyLimitOptions{MaxSize: 8}))
	r.POST("/echo", func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			assert.True(t, errors.As(err, &tooLarge))
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, string(data))
	})

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("short")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "short", w.Body.String())
	})

	t.Run("declared length over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("much too long")))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "too large")
	})

	t.Run("undeclared length over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", io.NopCloser(strings.NewReader("much too long")))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRequestID_ReplacesInvalidHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(*mwopts.NewRequestIDOptions()))
	r.GET("/t", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set(HeaderXRequestID, bad)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(HeaderXRequestID)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 26)
	}
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("01HZX-abc_123"))
	assert.True(t, validRequestID(strings.Repeat("a", 128)))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID("tab\there"))
	assert.False(t, validRequestID("中文"))
}

func TestRecovery_KeepsWrittenResponse(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(*mwopts.NewRecoveryOptions()))
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("after write")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}
