// forwarder accepts {"data": "..."} submissions over HTTP and hands each one,
// under a fresh UUID partition key, to a Kinesis (or Kafka) producer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dopl-dev/stream-forwarder/internal/app"
	"github.com/dopl-dev/stream-forwarder/internal/config"
	"github.com/dopl-dev/stream-forwarder/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, log).Run(ctx); err != nil {
		log.Error("forwarder exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
