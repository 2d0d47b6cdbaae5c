package schedule

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/logger"
)

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			out = append(out, logger.Any("extra", keysAndValues[i]))
			break
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
