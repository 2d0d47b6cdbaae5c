package source_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/source"
)

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		wantType  source.ErrorType
		transient bool
	}{
		{429, source.ErrTypeRateLimited, true},
		{403, source.ErrTypeForbidden, false},
		{404, source.ErrTypeNotFound, false},
		{500, source.ErrTypeUpstream, true},
		{503, source.ErrTypeUpstream, true},
		{400, source.ErrTypeUnexpected, false},
	}

	for _, tt := range tests {
		pe := source.ClassifyHTTPStatus(tt.status, "https://example.test")
		assert.Equal(t, tt.wantType, pe.Type, tt.status)
		assert.Equal(t, tt.transient, pe.Transient(), tt.status)
		assert.Equal(t, tt.status, pe.StatusCode)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	t.Parallel()

	timeout := source.ClassifyNetworkError(fmt.Errorf("dial: %w", context.DeadlineExceeded), "u")
	assert.Equal(t, source.ErrTypeTimeout, timeout.Type)
	assert.True(t, timeout.Transient())

	reset := source.ClassifyNetworkError(errors.New("connection reset by peer"), "u")
	assert.Equal(t, source.ErrTypeNetwork, reset.Type)
	assert.True(t, reset.Transient())
}

func TestIsTransient_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("page 2: %w", source.ClassifyHTTPStatus(502, "u"))
	assert.True(t, source.IsTransient(wrapped))
	assert.False(t, source.IsTransient(source.ClassifyParseError(errors.New("bad json"), "u")))
	assert.False(t, source.IsTransient(errors.New("plain")))
}

func TestFailure_PicksKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, source.PageTransientError, source.Failure(1, source.ClassifyHTTPStatus(429, "u")).Kind)
	assert.Equal(t, source.PagePermanentError, source.Failure(1, source.ClassifyHTTPStatus(404, "u")).Kind)
	assert.Equal(t, "transient_error", source.PageTransientError.String())
}

func TestExtractionError_Unwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &source.ExtractionError{Index: 3, Field: "title", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "record 3: invalid title: boom", err.Error())
}
