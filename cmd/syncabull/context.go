package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"syncabull/internal/auth"
	"syncabull/internal/config"
	"syncabull/internal/downloader"
	"syncabull/internal/logging"
	"syncabull/internal/scanner"
	"syncabull/internal/services/photos"
	"syncabull/internal/store"
	"syncabull/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the item store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// buildEngine wires the full component stack over an open store. Stored
// engine settings override the file config before anything is constructed.
func buildEngine(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*workflow.Manager, error) {
	if err := st.ApplyOverrides(ctx, cfg); err != nil {
		return nil, err
	}
	tokens := auth.NewManager(cfg, st, logger)
	client := photos.New(cfg, tokens, logger)
	sc := scanner.New(cfg, st, client, logger)
	dl := downloader.New(cfg, st, client, logger)
	return workflow.NewManager(cfg, st, sc, dl, logger), nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
