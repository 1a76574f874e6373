// Package options contains flags and options for initializing the query server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	chainrag "github.com/kart-io/chainrag/internal/chainrag"
	"github.com/kart-io/chainrag/pkg/infra/app"
	cacheopts "github.com/kart-io/chainrag/pkg/options/cache"
	ingestopts "github.com/kart-io/chainrag/pkg/options/ingest"
	llmopts "github.com/kart-io/chainrag/pkg/options/llm"
	logopts "github.com/kart-io/chainrag/pkg/options/logger"
	middlewareopts "github.com/kart-io/chainrag/pkg/options/middleware"
	pipelineopts "github.com/kart-io/chainrag/pkg/options/pipeline"
	httpopts "github.com/kart-io/chainrag/pkg/options/server/http"
	tracingopts "github.com/kart-io/chainrag/pkg/options/tracing"
	"github.com/kart-io/chainrag/pkg/options/vectorstore"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// MiddlewareOptions contains recovery, request ID and access log configuration.
	MiddlewareOptions *middlewareopts.Options `json:"middleware" mapstructure:"middleware"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// StoreOptions selects and configures the vector store.
	StoreOptions *vectorstore.Options `json:"store" mapstructure:"store"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ReasoningOptions configures the local reasoning model.
	ReasoningOptions *llmopts.ProviderOptions `json:"reasoning" mapstructure:"reasoning"`

	// SynthesisOptions configures the remote synthesis model.
	SynthesisOptions *llmopts.ProviderOptions `json:"synthesis" mapstructure:"synthesis"`

	PipelineOptions *pipelineopts.Options `json:"pipeline" mapstructure:"pipeline"`

	// IngestOptions is used by POST /v1/ingest and the optional watcher.
	IngestOptions *ingestopts.Options `json:"ingest" mapstructure:"ingest"`

	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// TracingOptions controls span export for queries and stages.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":8000"

	return &ServerOptions{
		HTTPOptions:       httpOpts,
		MiddlewareOptions: middlewareopts.NewOptions(),
		LogOptions:        logopts.NewOptions(),
		StoreOptions:      vectorstore.NewOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		ReasoningOptions:  llmopts.NewReasoningOptions(),
		SynthesisOptions:  llmopts.NewSynthesisOptions(),
		PipelineOptions:   pipelineopts.NewOptions(),
		IngestOptions:     ingestopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		TracingOptions:    tracingopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.MiddlewareOptions.AddFlags(fss.FlagSet("middleware"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding.")
	o.ReasoningOptions.AddFlags(fss.FlagSet("reasoning"), "reasoning.")
	o.SynthesisOptions.AddFlags(fss.FlagSet("synthesis"), "synthesis.")
	o.PipelineOptions.AddFlags(fss.FlagSet("pipeline"))
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.MiddlewareOptions.Complete(); err != nil {
		return err
	}
	if err := o.StoreOptions.Complete(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ReasoningOptions.Complete(); err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}
	if err := o.SynthesisOptions.Complete(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	if err := o.PipelineOptions.Complete(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := o.IngestOptions.Complete(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.MiddlewareOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixed("reasoning", o.ReasoningOptions.Validate())...)
	errs = append(errs, prefixed("synthesis", o.SynthesisOptions.Validate())...)
	errs = append(errs, o.PipelineOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)

	return utilerrors.NewAggregate(errs)
}

// Config builds a chainrag.Config based on ServerOptions.
func (o *ServerOptions) Config() (*chainrag.Config, error) {
	return &chainrag.Config{
		HTTPOptions:       o.HTTPOptions,
		MiddlewareOptions: o.MiddlewareOptions,
		LogOptions:        o.LogOptions,
		StoreOptions:      o.StoreOptions,
		EmbeddingOptions:  o.EmbeddingOptions,
		ReasoningOptions:  o.ReasoningOptions,
		SynthesisOptions:  o.SynthesisOptions,
		PipelineOptions:   o.PipelineOptions,
		IngestOptions:     o.IngestOptions,
		CacheOptions:      o.CacheOptions,
		TracingOptions:    o.TracingOptions,
	}, nil
}

func prefixed(section string, errs []error) []error {
	for i, err := range errs {
		errs[i] = fmt.Errorf("%s.%w", section, err)
	}
	return errs
}
