// Package vectorstore provides vector store selection options.
package vectorstore

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
	milvusopts "github.com/kart-io/chainrag/pkg/options/milvus"
	qdrantopts "github.com/kart-io/chainrag/pkg/options/qdrant"
)

var _ options.IOptions = (*Options)(nil)

// Supported backends.
const (
	BackendMilvus = "milvus"
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Options 向量库配置。
type Options struct {
	// Backend 选择向量库实现（milvus, qdrant, memory）。
	Backend string `json:"backend" mapstructure:"backend"`

	// Collection 集合名称，摄取与查询必须一致。
	Collection string `json:"collection" mapstructure:"collection"`

	// Dimension 向量维度，与嵌入模型保持一致。
	Dimension int `json:"dimension" mapstructure:"dimension"`

	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
	Qdrant *qdrantopts.Options `json:"qdrant" mapstructure:"qdrant"`
}

// NewOptions 创建默认向量库配置。
func NewOptions() *Options {
	return &Options{
		Backend:    BackendMilvus,
		Collection: "chainrag_docs",
		Dimension:  768, // nomic-embed-text
		Milvus:     milvusopts.NewOptions(),
		Qdrant:     qdrantopts.NewOptions(),
	}
}

// AddFlags adds flags for vector store options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "store."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Vector store backend (milvus, qdrant, memory).")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Collection holding the document chunks.")
	fs.IntVar(&o.Dimension, p+"dimension", o.Dimension, "Embedding dimension expected by the collection.")

	if o.Milvus == nil {
		o.Milvus = milvusopts.NewOptions()
	}
	if o.Qdrant == nil {
		o.Qdrant = qdrantopts.NewOptions()
	}
	sub := append(append([]string{}, prefixes...), "store")
	o.Milvus.AddFlags(fs, sub...)
	o.Qdrant.AddFlags(fs, sub...)
}

// Complete completes the vector store options with defaults.
func (o *Options) Complete() error {
	if o.Milvus == nil {
		o.Milvus = milvusopts.NewOptions()
	}
	if o.Qdrant == nil {
		o.Qdrant = qdrantopts.NewOptions()
	}
	if err := o.Milvus.Complete(); err != nil {
		return err
	}
	return o.Qdrant.Complete()
}

// Validate validates the vector store options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("store.collection is required"))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("store.dimension must be positive"))
	}
	switch o.Backend {
	case BackendMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	case BackendQdrant:
		errs = append(errs, o.Qdrant.Validate()...)
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", o.Backend))
	}
	return errs
}
