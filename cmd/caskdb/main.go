package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0xRadioAc7iv/caskdb/core"
	"github.com/0xRadioAc7iv/caskdb/internal/config"
	"github.com/0xRadioAc7iv/caskdb/internal/metrics"
	"github.com/0xRadioAc7iv/caskdb/internal/shell"
	"github.com/0xRadioAc7iv/caskdb/internal/utils"
)

func main() {
	flags := utils.HandleCLIInputs()

	cfg, err := flags.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("caskdb stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("keydir", cfg.Storage.Keydir),
		zap.Int64("max_datafile_size", cfg.Storage.MaxDatafileSize),
		zap.Int("value_cache_entries", cfg.Storage.ValueCacheEntries),
		zap.Bool("lock_directory", cfg.Storage.LockDirectory))

	created, err := utils.PrepareDirectory(cfg.Storage.DataDir, cfg.Storage.CreateDir)
	if err != nil {
		return err
	}
	if created {
		logger.Info("Created data directory", zap.String("dir", cfg.Storage.DataDir))
	}

	opts := append(cfg.Options(), core.WithLogger(logger))

	var collector *metrics.Collector
	var snap shell.Snapshotter
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		opts = append(opts, core.WithObserver(collector))
		snap = collector
	}

	ds, err := core.Open(cfg.Storage.DataDir, opts...)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}

	ctx, stop := utils.InterruptContext(context.Background())
	defer stop()

	fmt.Printf("caskdb ready on %s\n", ds.Path())
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	sh := shell.New(ds, snap, logger)
	runErr := sh.Run(ctx, os.Stdin, os.Stdout)

	if err := ds.Close(); err != nil {
		return fmt.Errorf("close datastore: %w", err)
	}
	return runErr
}

// initLogger builds the zap logger described by the logging config.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// Replies go to stdout; keep log lines off it.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
