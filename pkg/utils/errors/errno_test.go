package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service, category, sequence int
		expected                    int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{21, 1, 1, 2101001},
		{21, 11, 1, 2111001},
		{90, 7, 1, 9007001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			assert.Equal(t, tt.expected, MakeCode(tt.service, tt.category, tt.sequence))
			s, c, q := ParseCode(tt.expected)
			assert.Equal(t, []int{tt.service, tt.category, tt.sequence}, []int{s, c, q})
		})
	}
}

func TestChainRAGCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *Errno
		http int
		grpc codes.Code
	}{
		{"validation", ErrValidation, http.StatusBadRequest, codes.InvalidArgument},
		{"authentication", ErrAuthentication, http.StatusBadGateway, codes.Unauthenticated},
		{"overloaded", ErrOverloaded, http.StatusTooManyRequests, codes.ResourceExhausted},
		{"empty", ErrEmptyResult, http.StatusBadGateway, codes.Unavailable},
		{"unavailable", ErrUpstreamUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{"timeout", ErrStageTimeout, http.StatusGatewayTimeout, codes.DeadlineExceeded},
		{"dimension", ErrDimensionMismatch, http.StatusInternalServerError, codes.Internal},
	}

	seen := map[int]bool{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.http, tt.err.HTTPStatus())
			assert.Equal(t, tt.grpc, tt.err.GRPCStatus())
			assert.False(t, seen[tt.err.Code], "duplicate code %d", tt.err.Code)
			seen[tt.err.Code] = true

			got, ok := Lookup(tt.err.Code)
			require.True(t, ok)
			assert.Same(t, tt.err, got)
		})
	}

	name, ok := GetServiceName(ServiceChainRAG)
	require.True(t, ok)
	assert.Equal(t, "chainrag", name)
}

func TestWithCauseKeepsIdentity(t *testing.T) {
	cause := stderrors.New("connection refused")
	wrapped := ErrUpstreamUnavailable.WithCause(cause)

	assert.NotSame(t, ErrUpstreamUnavailable, wrapped)
	assert.True(t, stderrors.Is(wrapped, ErrUpstreamUnavailable))
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.Nil(t, ErrUpstreamUnavailable.Cause())
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := stderrors.New("boom")
	assert.Equal(t, ErrInternal.Code, FromError(plain).Code)

	wrapped := fmt.Errorf("stage: %w", ErrStageTimeout.WithMessage("reasoning timed out"))
	e := FromError(wrapped)
	assert.Equal(t, ErrStageTimeout.Code, e.Code)
	assert.Equal(t, "reasoning timed out", e.MessageEN)
	assert.True(t, IsCode(wrapped, ErrStageTimeout.Code))
	assert.Equal(t, -1, GetCode(plain))
}

func TestCodesSorted(t *testing.T) {
	all := Codes()
	require.NotEmpty(t, all)
	assert.True(t, slices.IsSorted(all))
	assert.Contains(t, all, ErrDimensionMismatch.Code)
}

func TestNewErrorRange(t *testing.T) {
	assert.Panics(t, func() { NewError(100, CategoryRequest, 1, http.StatusBadRequest, codes.InvalidArgument, "x", "") })
	assert.Panics(t, func() { NewError(ServiceChainRAG, CategoryRequest, 1000, http.StatusBadRequest, codes.InvalidArgument, "x", "") })
	assert.Panics(t, func() { NewError(ServiceChainRAG, CategoryRequest, 998, http.StatusBadRequest, codes.InvalidArgument, "", "") })
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(New(ErrValidation.Code, http.StatusBadRequest, codes.InvalidArgument, "dup", ""))
	})
	assert.Panics(t, func() {
		RegisterService(ServiceChainRAG, "other")
	})
}

func TestMessageLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"zh-CN", "查询参数无效"},
		{"zh", "查询参数无效"},
		{"zh-CN,zh;q=0.9,en;q=0.8", "查询参数无效"},
		{"en-US,zh;q=0.5", "Invalid query"},
		{"", "Invalid query"},
		{"zhx", "Invalid query"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrValidation.Message(tt.lang), tt.lang)
	}
	assert.True(t, IsClientError(ErrValidation.Code))
	assert.True(t, IsServerError(ErrStageTimeout.Code))
}
