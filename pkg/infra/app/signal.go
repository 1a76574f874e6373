package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"
)

// SignalContext is cancelled on the first SIGINT or SIGTERM so the command
// can drain. A second signal exits the process with status 1.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Infow("Shutting down, send the signal again to force exit", "signal", sig.String())
		cancel()
		<-ch
		os.Exit(1)
	}()
	return ctx
}
