package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modelbridge/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cli.Run(ctx, os.Args[1:], &cli.Config{}); err != nil {
		fmt.Fprintln(os.Stderr, "modelbridge:", err)
		stop()
		os.Exit(1)
	}
}
