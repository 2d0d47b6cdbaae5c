package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBrowserError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      ErrorType
		transient bool
	}{
		{"deadline", fmt.Errorf("navigate: %w", context.DeadlineExceeded), ErrTypeTimeout, true},
		{"chrome timeout", errors.New("navigation failed: net::ERR_TIMED_OUT"), ErrTypeTimeout, true},
		{"connection reset", errors.New("navigation failed: net::ERR_CONNECTION_RESET"), ErrTypeNetwork, true},
		{"other", errors.New("eval: cannot find context"), ErrTypeUnexpected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := classifyBrowserError(tt.err, "https://stackoverflow.com/questions")
			assert.Equal(t, tt.want, pe.Type)
			assert.Equal(t, tt.transient, pe.Transient())
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}
