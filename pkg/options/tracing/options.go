// Package tracing OpenTelemetry 链路导出配置，对应 tracing 段。
package tracing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的导出方式。
const (
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
	ExporterStdout   = "stdout"
)

// Options 链路追踪配置。关闭时 span 仍会创建，但不会被采样或导出。
type Options struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Exporter string `json:"exporter" mapstructure:"exporter"`
	// Endpoint gRPC 填 host:port，HTTP 填 host:port 或完整 URL。
	Endpoint string            `json:"endpoint" mapstructure:"endpoint"`
	Insecure bool              `json:"insecure" mapstructure:"insecure"`
	Headers  map[string]string `json:"headers" mapstructure:"headers"`
	// SampleRatio 根 span 采样比例，子 span 跟随父 span 的决定。
	SampleRatio  float64       `json:"sample-ratio" mapstructure:"sample-ratio"`
	Environment  string        `json:"environment" mapstructure:"environment"`
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
}

// NewOptions 默认关闭，打开后导出到本机 collector。
func NewOptions() *Options {
	return &Options{
		Exporter:     ExporterOTLPGRPC,
		Endpoint:     "localhost:4317",
		Insecure:     true,
		Headers:      map[string]string{},
		SampleRatio:  1,
		Environment:  "development",
		BatchTimeout: 5 * time.Second,
	}
}

// AddFlags 注册 tracing.* 参数。
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "tracing."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Export query and stage spans.")
	fs.StringVar(&o.Exporter, p+"exporter", o.Exporter, "Span exporter: otlp-grpc, otlp-http or stdout.")
	fs.StringVar(&o.Endpoint, p+"endpoint", o.Endpoint, "OTLP collector endpoint.")
	fs.BoolVar(&o.Insecure, p+"insecure", o.Insecure, "Send OTLP without TLS.")
	fs.StringToStringVar(&o.Headers, p+"headers", o.Headers, "Extra OTLP headers, e.g. authorization=Bearer xyz.")
	fs.Float64Var(&o.SampleRatio, p+"sample-ratio", o.SampleRatio, "Fraction of root spans to sample (0 to 1).")
	fs.StringVar(&o.Environment, p+"environment", o.Environment, "deployment.environment resource attribute.")
	fs.DurationVar(&o.BatchTimeout, p+"batch-timeout", o.BatchTimeout, "Maximum delay before a batch of spans is exported.")
}

// Complete 补全空 map。
func (o *Options) Complete() error {
	if o.Headers == nil {
		o.Headers = map[string]string{}
	}
	return nil
}

// Validate 只在开启时校验。
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	switch o.Exporter {
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if o.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required for exporter %s", o.Exporter))
		}
	case ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not one of otlp-grpc, otlp-http, stdout", o.Exporter))
	}
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample-ratio must be within [0, 1], got %v", o.SampleRatio))
	}
	if o.BatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tracing.batch-timeout must be positive"))
	}
	return errs
}
