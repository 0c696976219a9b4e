package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jsonrpc-router/internal/cli"
)

var version = "dev" // set by ldflags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, version, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
