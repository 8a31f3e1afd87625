package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"spotcore"
	"spotcore/kafka"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	spotcore.SetLogger(logger)

	cfg, err := spotcore.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	var publisher spotcore.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers, logger)
	} else {
		publisher = spotcore.NewDiscardPublisher()
	}
	defer publisher.Close()

	store := spotcore.NewFileSnapshotStore(cfg.Snapshot.Dir)
	engine := spotcore.NewEngine(cfg, publisher, store)

	// A corrupt snapshot is fatal: starting with an empty ledger would
	// destroy fund records. Operator intervention required.
	if err := engine.Bootstrap(); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("engine started", "snapshot_dir", cfg.Snapshot.Dir, "snapshot_interval", cfg.SnapshotInterval().String())

	if err := engine.Run(ctx); err != nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("engine shut down cleanly")
}
