// Package middleware 定义 HTTP 中间件的配置。
package middleware

import (
	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 中间件配置集合，对应配置文件中的 middleware 段。
type Options struct {
	Recovery  *RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`
	Logger    *LoggerOptions    `json:"logger" mapstructure:"logger"`
	BodyLimit *BodyLimitOptions `json:"body-limit" mapstructure:"body-limit"`
}

type section interface {
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
	Validate() []error
}

// NewOptions 返回默认配置。
func NewOptions() *Options {
	o := &Options{}
	_ = o.Complete()
	return o
}

// sections 按挂载顺序返回各子配置，调用前需 Complete。
func (o *Options) sections() []section {
	return []section{o.Recovery, o.RequestID, o.Logger, o.BodyLimit}
}

// AddFlags 注册全部中间件参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	_ = o.Complete()
	for _, s := range o.sections() {
		s.AddFlags(fs, prefixes...)
	}
}

// Validate 汇总各子配置的校验错误。
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	_ = o.Complete()
	var errs []error
	for _, s := range o.sections() {
		errs = append(errs, s.Validate()...)
	}
	return errs
}

// Complete 为缺失的子配置填充默认值。
func (o *Options) Complete() error {
	if o.Recovery == nil {
		o.Recovery = NewRecoveryOptions()
	}
	if o.RequestID == nil {
		o.RequestID = NewRequestIDOptions()
	}
	if o.Logger == nil {
		o.Logger = NewLoggerOptions()
	}
	if o.BodyLimit == nil {
		o.BodyLimit = NewBodyLimitOptions()
	}
	return nil
}
