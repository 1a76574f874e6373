// Package main is the entry point of the chainrag query service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/chainrag/cmd/chainrag/app"
)

func main() {
	app.NewApp().Run()
}
