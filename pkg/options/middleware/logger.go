package middleware

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

// LoggerOptions 访问日志配置。
type LoggerOptions struct {
	// SkipPaths 探针与指标路径不记日志。
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
	// SlowThreshold 超过该耗时的请求以 warn 级别记录，0 关闭。
	SlowThreshold time.Duration `json:"slow-threshold" mapstructure:"slow-threshold"`
}

// NewLoggerOptions 返回默认配置。
func NewLoggerOptions() *LoggerOptions {
	return &LoggerOptions{
		SkipPaths:     []string{"/health", "/healthz", "/readyz", "/metrics", "/version"},
		SlowThreshold: time.Minute,
	}
}

// AddFlags 注册 middleware.logger.* 参数。
func (o *LoggerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware.logger."
	fs.StringSliceVar(&o.SkipPaths, p+"skip-paths", o.SkipPaths, "Paths excluded from access logging.")
	fs.DurationVar(&o.SlowThreshold, p+"slow-threshold", o.SlowThreshold, "Log requests slower than this at warn level (0 disables).")
}

// Validate 校验配置。
func (o *LoggerOptions) Validate() []error {
	if o != nil && o.SlowThreshold < 0 {
		return []error{errors.New("middleware.logger.slow-threshold must not be negative")}
	}
	return nil
}
