package main

import (
	"context"
	"os/signal"
	"syscall"

	"crawlfleet/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.FatalCtx(ctx, "%v", err)
	}
}
