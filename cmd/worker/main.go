package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/parley/internal/app"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/workflow"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration: PARLEY_CONFIG, ./parley.yml, ./parley.toml or defaults
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 2. Logging
	logger, closeLog, err := logging.New(cfg.LoggingConfig("json"))
	if err != nil {
		return err
	}
	defer closeLog()

	// 3. Wire the activity dependencies against the shared store
	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Engine.Temporal.HostPort,
		Namespace: cfg.Engine.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to temporal at %s: %w", cfg.Engine.Temporal.HostPort, err)
	}
	defer c.Close()

	// 5. Register and poll until interrupted
	w := worker.New(c, cfg.Engine.Temporal.TaskQueue, worker.Options{})
	workflow.Register(w, a.Activities)

	logger.Info("worker starting",
		"task_queue", cfg.Engine.Temporal.TaskQueue,
		"namespace", cfg.Namespace,
		"store", cfg.Store.Backend)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg := config.Default()
	if path := config.Locate("", wd, os.Getenv); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.Engine.Backend = config.EngineTemporal
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
