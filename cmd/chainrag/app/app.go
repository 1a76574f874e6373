// Package app provides the query server application.
package app

import (
	"fmt"

	"github.com/kart-io/chainrag/cmd/chainrag/app/options"
	chainrag "github.com/kart-io/chainrag/internal/chainrag"
	"github.com/kart-io/chainrag/pkg/infra/app"
)

const commandDesc = `chainrag query service

Answers questions over a local document collection with a two-model chain:
  - query embedding and vector retrieval (Milvus, Qdrant or in-memory)
  - private reasoning over the retrieved context on a local Ollama model
  - final answer synthesis on a remote OpenAI-compatible model

Each stage runs under its own timeout and bounded retry budget, and
concurrent queries are admitted through a bounded worker pool.`

// NewApp builds the chainrag command.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(chainrag.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := app.SignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}
