// Command citybridge exposes the mock city devices as agent tools over MCP
// and a small HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, a := newRootCmd()
	if err := a.execute(ctx, root); err != nil {
		stop()
		os.Exit(1)
	}
}
