package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kart-io/chainrag/pkg/utils/httpclient"
)

// 上游失败类别。供应商返回的错误都通过 errors.Is 匹配其中之一, 由调用方决定是否重试。
var (
	ErrUnavailable   = errors.New("upstream unavailable")
	ErrTimeout       = errors.New("upstream timeout")
	ErrUnauthorized  = errors.New("upstream rejected credentials")
	ErrRateLimited   = errors.New("upstream rate limited")
	ErrEmptyResponse = errors.New("upstream returned no usable output")
	ErrRejected      = errors.New("upstream rejected request")
)

// UpstreamError 记录失败的供应商调用。
type UpstreamError struct {
	Provider   string
	Op         string
	Kind       error
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %v (status %d): %v", e.Provider, e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying error to errors.Is.
func (e *UpstreamError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindForStatus 将 HTTP 状态码映射为失败类别。
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

// Classify 将调用错误包装为 *UpstreamError。
// 调用方上下文被取消时原样返回, 取消不属于上游失败。
func Classify(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}

	out := &UpstreamError{Provider: provider, Op: op, Err: err}

	var se *httpclient.StatusError
	var ne net.Error
	switch {
	case errors.As(err, &se):
		out.StatusCode = se.StatusCode
		out.Kind = KindForStatus(se.StatusCode)
	case errors.Is(err, httpclient.ErrMalformedResponse):
		out.Kind = ErrEmptyResponse
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = ErrTimeout
	case errors.As(err, &ne) && ne.Timeout():
		out.Kind = ErrTimeout
	default:
		out.Kind = ErrUnavailable
	}
	return out
}

// Empty 构造一个空结果错误。
func Empty(provider, op, detail string) error {
	return &UpstreamError{Provider: provider, Op: op, Kind: ErrEmptyResponse, Err: errors.New(detail)}
}

// IsRetryable reports whether err is a transient upstream condition.
// Empty responses are excluded; callers cap those separately.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}
