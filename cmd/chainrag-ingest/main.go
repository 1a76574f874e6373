// Package main is the entry point of the chainrag ingestion command.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/chainrag/cmd/chainrag-ingest/app"
)

func main() {
	app.NewApp().Run()
}
