package mirror

import (
	"time"

	"github.com/rb3ckers/cdnrace/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type MirrorStatusHandler func(name string, from, to gobreaker.State)

// LoggingStatusHandler tracks since when the mirror is failing and reports breaker transitions.
func LoggingStatusHandler(m *Mirror) MirrorStatusHandler {
	return func(name string, from, to gobreaker.State) {
		switch to {
		case gobreaker.StateOpen:
			metrics.MirrorAvailable.Set(0)

			if from == gobreaker.StateClosed {
				m.Lock()
				defer m.Unlock()
				m.firstFailureTime = time.Now()

				log.Warn().Str("mirror", name).Msg("Temporarily not racing the mirror")
			}
		case gobreaker.StateHalfOpen:
			log.Info().Str("mirror", name).Msg("Retrying mirror")

		case gobreaker.StateClosed:
			metrics.MirrorAvailable.Set(1)

			m.Lock()
			defer m.Unlock()
			m.firstFailureTime = time.Time{}

			log.Info().Str("mirror", name).Msg("Resuming racing the mirror")
		}
	}
}
