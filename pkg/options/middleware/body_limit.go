package middleware

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

// BodyLimitOptions 请求体大小限制。查询文本有长度上限，
// 默认 1MB 足以覆盖任何合法请求。
type BodyLimitOptions struct {
	// MaxSize 最大请求体字节数，<=0 表示不限制。
	MaxSize int64 `json:"max-size" mapstructure:"max-size"`
}

// NewBodyLimitOptions 创建默认配置。
func NewBodyLimitOptions() *BodyLimitOptions {
	return &BodyLimitOptions{MaxSize: 1 << 20}
}

// AddFlags adds flags for body limit options to the specified FlagSet.
func (o *BodyLimitOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Int64Var(&o.MaxSize, options.Join(prefixes...)+"middleware.body-limit.max-size", o.MaxSize, "Maximum request body size in bytes (<=0 disables the limit).")
}

// Validate 限制在 1GB 以内。
func (o *BodyLimitOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.MaxSize > 1<<30 {
		return []error{errors.New("middleware.body-limit.max-size must not exceed 1GB")}
	}
	return nil
}

// Complete 无需补全。
func (o *BodyLimitOptions) Complete() error {
	return nil
}
