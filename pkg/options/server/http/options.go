// Package http 定义查询服务 HTTP 监听相关的配置。
package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options HTTP 服务配置。
type Options struct {
	Addr string `json:"addr" mapstructure:"addr"`
	// Mode gin 运行模式: debug, release, test。
	Mode        string        `json:"mode" mapstructure:"mode"`
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout 需覆盖一次完整流水线（推理阶段可能长达数分钟）。
	WriteTimeout    time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout     time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions 返回默认配置。
func NewOptions() *Options {
	return &Options{
		Addr:            ":8000",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// AddFlags 注册 http.* 命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Address the query API listens on.")
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Gin mode: debug, release or test.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Maximum time to read a request.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Maximum time to write a response. Must exceed the slowest query.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Keep-alive idle timeout.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "Time allowed for in-flight queries on shutdown.")
}

// Complete 填充空的运行模式。
func (o *Options) Complete() error {
	if o.Mode == "" {
		o.Mode = gin.ReleaseMode
	}
	return nil
}

// Validate 校验配置。
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr cannot be empty"))
	}
	if o.Mode != gin.DebugMode && o.Mode != gin.ReleaseMode && o.Mode != gin.TestMode {
		errs = append(errs, fmt.Errorf("http.mode %q is invalid", o.Mode))
	}
	for name, d := range map[string]time.Duration{
		"read-timeout":     o.ReadTimeout,
		"write-timeout":    o.WriteTimeout,
		"shutdown-timeout": o.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("http.%s must be positive", name))
		}
	}
	return errs
}
