// Package logger 把 kart-io/logger 的 LogOption 接入服务配置，对应 log 段。
package logger

import (
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 日志配置。
type Options struct {
	*option.LogOption
}

// NewOptions 返回 kart-io/logger 的默认配置。
func NewOptions() *Options {
	return &Options{LogOption: option.DefaultLogOption()}
}

// AddFlags 注册 log.* 参数。日志轮转只在输出到文件时生效。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	_ = o.Complete()
	p := options.Join(prefixes...) + "log."

	fs.StringVar(&o.Engine, p+"engine", o.Engine, "Logger backend: zap or slog.")
	fs.StringVar(&o.Level, p+"level", o.Level, "Minimum level: debug, info, warn, error or fatal.")
	fs.StringVar(&o.Format, p+"format", o.Format, "Encoding: json or console.")
	fs.StringSliceVar(&o.OutputPaths, p+"output-paths", o.OutputPaths, "Where to write logs: stdout, stderr or file paths.")
	fs.BoolVar(&o.Development, p+"development", o.Development, "Human friendly output for local runs.")
	fs.BoolVar(&o.DisableCaller, p+"disable-caller", o.DisableCaller, "Omit the caller location.")
	fs.BoolVar(&o.DisableStacktrace, p+"disable-stacktrace", o.DisableStacktrace, "Omit stack traces on error logs.")
	fs.StringVar(&o.OTLPEndpoint, p+"otlp-endpoint", o.OTLPEndpoint, "Also ship logs to this OTLP collector.")

	if o.Rotation == nil {
		o.Rotation = &option.RotationOption{MaxSize: 100, MaxAge: 7, MaxBackups: 10, Compress: true}
	}
	fs.IntVar(&o.Rotation.MaxSize, p+"rotation.max-size", o.Rotation.MaxSize, "Rotate a log file after this many MB.")
	fs.IntVar(&o.Rotation.MaxAge, p+"rotation.max-age", o.Rotation.MaxAge, "Days to keep rotated files.")
	fs.IntVar(&o.Rotation.MaxBackups, p+"rotation.max-backups", o.Rotation.MaxBackups, "Rotated files to keep.")
	fs.BoolVar(&o.Rotation.Compress, p+"rotation.compress", o.Rotation.Compress, "Gzip rotated files.")
}

// Validate 委托给 LogOption.Validate。
func (o *Options) Validate() []error {
	if o == nil || o.LogOption == nil {
		return nil
	}
	if err := o.LogOption.Validate(); err != nil {
		return []error{err}
	}
	return nil
}

// Complete 补全空配置。
func (o *Options) Complete() error {
	if o.LogOption == nil {
		o.LogOption = option.DefaultLogOption()
	}
	return nil
}

// New 按配置构造独立的 logger 实例。
func (o *Options) New() (core.Logger, error) {
	_ = o.Complete()
	return logger.New(o.LogOption)
}

// Init 构造 logger 并替换进程级默认实例。
func (o *Options) Init() error {
	l, err := o.New()
	if err != nil {
		return err
	}
	logger.SetGlobal(l)
	return nil
}
