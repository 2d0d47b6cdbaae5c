// Package common provides shared utilities for command implementations.
package common

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Logger logger.Logger
	Config *config.Config
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// NewCommandDeps loads the configuration named by the persistent --config
// flag and builds the logger. The logger is also stored on the command
// context for helpers that only receive a context.
func NewCommandDeps(cmd *cobra.Command) (CommandDeps, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.App.Debug = true
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	deps := CommandDeps{Logger: log, Config: cfg}
	if validateErr := deps.Validate(); validateErr != nil {
		return CommandDeps{}, fmt.Errorf("validate deps: %w", validateErr)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithContext(ctx, log))
	return deps, nil
}
