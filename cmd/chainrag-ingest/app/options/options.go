// Package options contains flags and options for the ingestion command.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/chainrag/pkg/infra/app"
	ingestopts "github.com/kart-io/chainrag/pkg/options/ingest"
	llmopts "github.com/kart-io/chainrag/pkg/options/llm"
	logopts "github.com/kart-io/chainrag/pkg/options/logger"
	"github.com/kart-io/chainrag/pkg/options/vectorstore"
)

// IngestOptions contains the configuration of one ingestion run.
type IngestOptions struct {
	LogOptions       *logopts.Options         `json:"log" mapstructure:"log"`
	StoreOptions     *vectorstore.Options     `json:"store" mapstructure:"store"`
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	IngestOptions    *ingestopts.Options      `json:"ingest" mapstructure:"ingest"`
}

// NewIngestOptions creates an IngestOptions instance with default values.
func NewIngestOptions() *IngestOptions {
	return &IngestOptions{
		LogOptions:       logopts.NewOptions(),
		StoreOptions:     vectorstore.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		IngestOptions:    ingestopts.NewOptions(),
	}
}

// Flags returns flags grouped by section.
func (o *IngestOptions) Flags() (fss app.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding.")
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))
	return fss
}

// Complete completes all the required options.
func (o *IngestOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return err
	}
	if err := o.StoreOptions.Complete(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return o.IngestOptions.Complete()
}

// Validate checks whether the options are valid.
func (o *IngestOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	return utilerrors.NewAggregate(errs)
}
