package commands

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/internal/config"
	"github.com/agrisense/agripipe/internal/storage"
	"github.com/agrisense/agripipe/pkg/interfaces"
)

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// historyBackend bundles a history provider with its optional write side and
// shutdown hook.
type historyBackend struct {
	provider interfaces.HistoryProvider
	recorder interfaces.HistoryRecorder
	close    func() error
}

// openHistory connects the configured history backend.
func openHistory(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*historyBackend, error) {
	switch cfg.Storage.History {
	case "timescaledb":
		ts, err := storage.NewTimescaleDBHistory(cfg.TimescaleDBConfig(), logger)
		if err != nil {
			return nil, err
		}
		if err := ts.Connect(ctx); err != nil {
			return nil, err
		}
		return &historyBackend{provider: ts, recorder: ts, close: ts.Close}, nil

	case "influxdb":
		in, err := storage.NewInfluxDBHistory(cfg.InfluxDBConfig(), logger)
		if err != nil {
			return nil, err
		}
		if err := in.Connect(ctx); err != nil {
			return nil, err
		}
		return &historyBackend{provider: in, recorder: in, close: in.Close}, nil

	default:
		mem := storage.NewMemoryHistory()
		return &historyBackend{provider: mem, recorder: mem, close: func() error { return nil }}, nil
	}
}

// openCheckpoint connects the Redis checkpoint store when enabled. A nil
// store means checkpointing is off.
func openCheckpoint(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (interfaces.CheckpointStore, error) {
	if !cfg.Storage.Checkpoint.Enabled {
		return nil, nil
	}
	store, err := storage.NewRedisCheckpointStore(cfg.CheckpointConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
