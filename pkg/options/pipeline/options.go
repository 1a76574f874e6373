// Package pipeline provides query pipeline configuration options.
package pipeline

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// MaxRetryBudget is the upper bound for the per-stage retry budget.
const MaxRetryBudget = 3

// Options 查询流水线配置。
type Options struct {
	// DefaultK 请求未指定 k 时的检索数量。
	DefaultK int `json:"default-k" mapstructure:"default-k"`

	// MaxK 允许的最大 k。
	MaxK int `json:"max-k" mapstructure:"max-k"`

	// ContextBudget 上下文块字符预算（按 rune 计），<=0 表示不限制。
	ContextBudget int `json:"context-budget" mapstructure:"context-budget"`

	// Retries 每个阶段的重试次数（0..3），0 表示每个外部调用只尝试一次。
	Retries int `json:"retries" mapstructure:"retries"`

	// InitialBackoff 首次重试前的等待时间。
	InitialBackoff time.Duration `json:"initial-backoff" mapstructure:"initial-backoff"`

	// MaxBackoff 退避上限。
	MaxBackoff time.Duration `json:"max-backoff" mapstructure:"max-backoff"`

	// Timeouts 各阶段单次尝试的超时时间。
	Timeouts *TimeoutOptions `json:"timeouts" mapstructure:"timeouts"`

	// MaxInFlight 同时执行的查询上限。
	MaxInFlight int `json:"max-in-flight" mapstructure:"max-in-flight"`

	// MaxQueued 等待执行的查询上限，超出直接拒绝。
	MaxQueued int `json:"max-queued" mapstructure:"max-queued"`

	// ReasoningModels 允许请求覆盖的推理模型列表，为空时只允许默认推理模型。
	ReasoningModels []string `json:"reasoning-models" mapstructure:"reasoning-models"`

	// Breaker 上游熔断配置。
	Breaker *BreakerOptions `json:"breaker" mapstructure:"breaker"`
}

// TimeoutOptions 各阶段超时配置。
type TimeoutOptions struct {
	Embed      time.Duration `json:"embed" mapstructure:"embed"`
	Retrieve   time.Duration `json:"retrieve" mapstructure:"retrieve"`
	Reason     time.Duration `json:"reason" mapstructure:"reason"`
	Synthesize time.Duration `json:"synthesize" mapstructure:"synthesize"`
}

// BreakerOptions 熔断配置，MaxFailures 为 0 时关闭熔断。
type BreakerOptions struct {
	MaxFailures int           `json:"max-failures" mapstructure:"max-failures"`
	Cooldown    time.Duration `json:"cooldown" mapstructure:"cooldown"`
}

// NewOptions 创建默认流水线配置。
func NewOptions() *Options {
	return &Options{
		DefaultK:       4,
		MaxK:           20,
		ContextBudget:  8000,
		Retries:        0,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Timeouts: &TimeoutOptions{
			Embed:      30 * time.Second,
			Retrieve:   10 * time.Second,
			Reason:     180 * time.Second,
			Synthesize: 60 * time.Second,
		},
		MaxInFlight: 8,
		MaxQueued:   64,
		Breaker: &BreakerOptions{
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		},
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pipeline."
	fs.IntVar(&o.DefaultK, p+"default-k", o.DefaultK, "Chunks retrieved when the request omits k.")
	fs.IntVar(&o.MaxK, p+"max-k", o.MaxK, "Largest k a request may ask for.")
	fs.IntVar(&o.ContextBudget, p+"context-budget", o.ContextBudget, "Context block budget in characters (<=0 disables truncation).")
	fs.IntVar(&o.Retries, p+"retries", o.Retries, "Retries per stage for transient failures (0..3).")
	fs.DurationVar(&o.InitialBackoff, p+"initial-backoff", o.InitialBackoff, "Backoff before the first retry.")
	fs.DurationVar(&o.MaxBackoff, p+"max-backoff", o.MaxBackoff, "Backoff cap.")
	fs.IntVar(&o.MaxInFlight, p+"max-in-flight", o.MaxInFlight, "Maximum concurrently executing queries.")
	fs.IntVar(&o.MaxQueued, p+"max-queued", o.MaxQueued, "Maximum queries waiting for a worker before rejection.")
	fs.StringSliceVar(&o.ReasoningModels, p+"reasoning-models", o.ReasoningModels, "Reasoning models a request may select.")

	if o.Timeouts == nil {
		o.Timeouts = NewOptions().Timeouts
	}
	fs.DurationVar(&o.Timeouts.Embed, p+"timeouts.embed", o.Timeouts.Embed, "Embedding attempt timeout.")
	fs.DurationVar(&o.Timeouts.Retrieve, p+"timeouts.retrieve", o.Timeouts.Retrieve, "Retrieval attempt timeout.")
	fs.DurationVar(&o.Timeouts.Reason, p+"timeouts.reason", o.Timeouts.Reason, "Reasoning attempt timeout.")
	fs.DurationVar(&o.Timeouts.Synthesize, p+"timeouts.synthesize", o.Timeouts.Synthesize, "Synthesis attempt timeout.")

	if o.Breaker == nil {
		o.Breaker = NewOptions().Breaker
	}
	fs.IntVar(&o.Breaker.MaxFailures, p+"breaker.max-failures", o.Breaker.MaxFailures, "Consecutive upstream failures that open the breaker (0 disables).")
	fs.DurationVar(&o.Breaker.Cooldown, p+"breaker.cooldown", o.Breaker.Cooldown, "Time the breaker stays open.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.MaxK <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-k must be positive"))
	}
	if o.DefaultK <= 0 || o.DefaultK > o.MaxK {
		errs = append(errs, fmt.Errorf("pipeline.default-k must be in [1, %d]", o.MaxK))
	}
	if o.Retries < 0 || o.Retries > MaxRetryBudget {
		errs = append(errs, fmt.Errorf("pipeline.retries must be in [0, %d]", MaxRetryBudget))
	}
	if o.InitialBackoff < 0 || o.MaxBackoff < o.InitialBackoff {
		errs = append(errs, fmt.Errorf("pipeline backoff must satisfy 0 <= initial-backoff <= max-backoff"))
	}
	if t := o.Timeouts; t == nil || t.Embed <= 0 || t.Retrieve <= 0 || t.Reason <= 0 || t.Synthesize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline stage timeouts must be positive"))
	}
	if o.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-in-flight must be positive"))
	}
	if o.MaxQueued < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-queued must not be negative"))
	}
	if o.Breaker != nil && o.Breaker.MaxFailures > 0 && o.Breaker.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.breaker.cooldown must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	def := NewOptions()
	if o.Timeouts == nil {
		o.Timeouts = def.Timeouts
	}
	if o.Breaker == nil {
		o.Breaker = def.Breaker
	}
	return nil
}
