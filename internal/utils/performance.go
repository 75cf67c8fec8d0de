package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// MeasureDBQuery starts a clock for queryName; call the returned func with the row count when done.
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rows int64) {
	start := time.Now()

	return func(rows int64) {
		duration := time.Since(start)

		log.Debug().
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows", rows).
			Msg("Database query completed")

		if duration > 5*time.Second {
			log.Warn().
				Str("query", queryName).
				Dur("duration", duration).
				Int64("rows", rows).
				Msg("Slow database query detected")
		}
	}
}
