// Package main is the entry point for the pdk CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pipelinedk/pdk/internal/cli"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interrupted := make(chan struct{})
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nreceived interrupt signal, shutting down gracefully...")
		close(interrupted)
		cancel()
	}()

	code := cli.Execute(ctx, version)

	select {
	case <-interrupted:
		code = cli.ExitInterrupted
	default:
	}

	os.Exit(code)
}
