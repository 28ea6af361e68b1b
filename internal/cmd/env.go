package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/Iron-Ham/workcrew/internal/config"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/registry"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// env is what every command that touches the store needs.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
}

// openEnv loads the configuration, opens the log and opens the store.
// Callers must call close.
func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := openLogger(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Root:     cfg.StoreRoot(),
		Location: cfg.Store.Location,
		Registry: registry.New(),
		Logger:   logger,
	})
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	for _, w := range st.Warnings() {
		logger.Warn("store warning", "error", w.Error())
	}

	return &env{cfg: cfg, logger: logger, store: st}, nil
}

func (e *env) close() {
	e.store.Close()
	_ = e.logger.Close()
}

// logDir is where the rotated JSON log lives.
func logDir(cfg *config.Config) string {
	return filepath.Join(cfg.StoreRoot(), "logs")
}

func openLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLoggerWithRotation(logDir(cfg), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}
