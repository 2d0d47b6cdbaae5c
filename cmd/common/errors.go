package common

import "errors"

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil
	ErrLoggerRequired = errors.New("logger is required")

	// ErrConfigRequired is returned when CommandDeps.Config is nil
	ErrConfigRequired = errors.New("config is required")

	// ErrNotConfirmed is returned when a destructive command was not confirmed
	ErrNotConfirmed = errors.New("operation not confirmed")
)
