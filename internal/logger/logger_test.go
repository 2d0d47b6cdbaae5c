package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

func TestNew_DefaultsApplied(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Debug("filtered at info level")
	l.Info("visible", logger.String("key", "value"))
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg logger.Config
	cfg.SetDefaults()

	assert.Equal(t, logger.DefaultLevel, cfg.Level)
	assert.Equal(t, logger.DefaultFormat, cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestWith_AttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := logger.NewFromZap(zap.New(core)).With(logger.Component("fetcher"))

	l.Warn("page aborted", logger.Int("page", 2))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "page aborted", entry.Message)
	assert.Equal(t, "fetcher", entry.ContextMap()["component"])
	assert.EqualValues(t, 2, entry.ContextMap()["page"])
}

func TestWithContext_FromContext_RoundTrip(t *testing.T) {
	t.Parallel()

	nop := logger.NewNop()
	ctx := logger.WithContext(context.Background(), nop)

	assert.Same(t, nop, logger.FromContext(ctx))
}

func TestFromContext_NoLogger_ReturnsFallback(t *testing.T) {
	t.Parallel()

	got := logger.FromContext(context.Background())
	require.NotNil(t, got)
	got.Warn("fallback works")
}
