package middleware

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

// 支持的请求 ID 生成器。
const (
	GeneratorULID = "ulid"
	GeneratorHex  = "hex"
)

// RequestIDOptions 请求 ID 中间件配置。
type RequestIDOptions struct {
	// Header 读取与回写请求 ID 的头部。
	Header string `json:"header" mapstructure:"header"`
	// GeneratorType ulid 按时间有序，hex 为 32 位随机串；random 视同 hex。
	GeneratorType string `json:"generator-type" mapstructure:"generator-type"`
}

// NewRequestIDOptions 返回默认配置。
func NewRequestIDOptions() *RequestIDOptions {
	return &RequestIDOptions{Header: "X-Request-ID", GeneratorType: GeneratorULID}
}

// AddFlags 注册 middleware.request-id.* 参数。
func (o *RequestIDOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware.request-id."
	fs.StringVar(&o.Header, p+"header", o.Header, "Header carrying the request id.")
	fs.StringVar(&o.GeneratorType, p+"generator", o.GeneratorType, "Request id generator: ulid or hex.")
}

// Validate 校验配置。
func (o *RequestIDOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Header == "" {
		errs = append(errs, fmt.Errorf("middleware.request-id.header cannot be empty"))
	}
	switch o.GeneratorType {
	case "", GeneratorULID, GeneratorHex, "random":
	default:
		errs = append(errs, fmt.Errorf("middleware.request-id.generator %q is not one of ulid, hex", o.GeneratorType))
	}
	return errs
}
