package middleware

import (
	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

// RecoveryOptions panic 恢复中间件配置。
type RecoveryOptions struct {
	// EnableStackTrace 在错误响应中附带堆栈，只应在本地调试时打开。
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// NewRecoveryOptions 返回默认配置，不输出堆栈。
func NewRecoveryOptions() *RecoveryOptions { return &RecoveryOptions{} }

// AddFlags 注册 middleware.recovery.* 参数。
func (o *RecoveryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.EnableStackTrace, options.Join(prefixes...)+"middleware.recovery.enable-stack-trace",
		o.EnableStackTrace, "Return the panic stack in the error response. Development only.")
}

// Validate 无需校验。
func (o *RecoveryOptions) Validate() []error { return nil }
