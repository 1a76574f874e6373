// Package handler provides the HTTP handlers of the query service.
package handler

import (
	"sync/atomic"

	"github.com/kart-io/chainrag/internal/chainrag/biz"
	"github.com/kart-io/chainrag/internal/chainrag/ingest"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/llm"
)

// Config wires a Handler. Models and Indexer are optional.
type Config struct {
	Executor *biz.Executor
	Store    store.VectorStore
	// Models lists what the local runtime has installed.
	Models   llm.ModelLister
	Indexer  *ingest.Indexer
	DataDir  string
}

// Handler serves the query, model, document and stats endpoints.
type Handler struct {
	executor *biz.Executor
	pipeline *biz.QueryPipeline
	store    store.VectorStore
	models   llm.ModelLister
	indexer  *ingest.Indexer
	dataDir  string

	ingesting atomic.Bool
}

// New creates a Handler.
func New(cfg *Config) *Handler {
	return &Handler{
		executor: cfg.Executor,
		pipeline: cfg.Executor.Pipeline(),
		store:    cfg.Store,
		models:   cfg.Models,
		indexer:  cfg.Indexer,
		dataDir:  cfg.DataDir,
	}
}
