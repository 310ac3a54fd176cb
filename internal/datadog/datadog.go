package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
)

var dogstatsd *statsd.Client

// InitMetrics starts the DogStatsD client. Without an agent address every
// Gauge call is a no-op.
func InitMetrics(cfg config.Metrics) {
	if cfg.StatsdAddr == "" {
		log.Debug().Msg("No statsd address configured - metrics disabled")
		return
	}

	var err error
	dogstatsd, err = statsd.New(cfg.StatsdAddr,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		dogstatsd = nil
		return
	}

	log.Info().
		Str("addr", cfg.StatsdAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

// Close flushes buffered metrics.
func Close() {
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close DogStatsD client")
	}
	dogstatsd = nil
}
