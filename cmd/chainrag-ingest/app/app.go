// Package app provides the offline ingestion command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/chainrag/cmd/chainrag-ingest/app/options"
	"github.com/kart-io/chainrag/internal/chainrag/ingest"
	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/infra/app"
	"github.com/kart-io/chainrag/pkg/llm"
	_ "github.com/kart-io/chainrag/pkg/llm/ollama"
	_ "github.com/kart-io/chainrag/pkg/llm/openai"
)

// Name is the name of the command.
const Name = "chainrag-ingest"

const commandDesc = `chainrag document ingestion

Loads .pdf, .txt and .md files from the data directory, splits them into
overlapping chunks, embeds them and writes them to the vector store
collection the query service reads. Re-ingesting a file replaces its chunks,
and chunks of files no longer in the directory are removed.

--ingest.rebuild drops and recreates the collection first, which is needed
after the collection schema changes.

With --ingest.watch the command keeps running and re-ingests the directory
after changes settle.`

// NewApp creates the ingestion command.
func NewApp() *app.App {
	opts := options.NewIngestOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.IngestOptions) app.RunFunc {
	return func() error {
		opts.LogOptions.AddInitialField("service.name", Name)
		opts.LogOptions.AddInitialField("service.version", app.GetVersion())
		if err := opts.LogOptions.Init(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ctx := app.SignalContext()

		vs, err := store.New(ctx, opts.StoreOptions)
		if err != nil {
			return fmt.Errorf("failed to initialize vector store: %w", err)
		}
		defer func() { _ = vs.Close(context.Background()) }()

		embedder, err := llm.NewEmbeddingProvider(opts.EmbeddingOptions.Provider, opts.EmbeddingOptions.ToConfigMap())
		if err != nil {
			return fmt.Errorf("failed to initialize embedding provider: %w", err)
		}

		ingestOpts := opts.IngestOptions
		if ingestOpts.Rebuild {
			logger.Warnw("Rebuilding collection", "collection", vs.Collection())
			if err := vs.Reset(ctx); err != nil {
				return fmt.Errorf("failed to rebuild collection: %w", err)
			}
		}
		indexer := ingest.NewIndexer(embedder, vs, metrics.New(), &ingest.Config{
			ChunkSize:    ingestOpts.ChunkSize,
			ChunkOverlap: ingestOpts.ChunkOverlap,
			BatchSize:    ingestOpts.BatchSize,
		})

		report, err := indexer.IndexDir(ctx, ingestOpts.DataDir)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		if !ingestOpts.Watch {
			if len(report.Failed) > 0 {
				return errors.New("some documents failed to ingest")
			}
			return nil
		}

		logger.Info("Initial ingestion done, watching for changes")
		return ingest.NewWatcher(indexer, ingestOpts.DataDir, ingestOpts.Debounce).Run(ctx)
	}
}
