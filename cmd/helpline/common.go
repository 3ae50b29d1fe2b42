package main

import (
	"fmt"

	"github.com/haimi-h/shopify-clone-sub000/internal/config"
	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openSessionStore(cfg *config.Config) (*session.FileStore, error) {
	store, err := session.NewFileStore(cfg.Session.File)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return store, nil
}

// newLogger returns the configured logger, or a no-op one when quiet is set.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	if quiet {
		return logging.Nop(), nil
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
