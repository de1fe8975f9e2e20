package driver

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ygrebnov/async/metrics"
)

// Option configures a Driver via the functional-options pattern, scaled
// down to the driver's own small configuration surface.
type Option func(*config)

type config struct {
	logger            zerolog.Logger
	deadlineScanEvery time.Duration
	metrics           metrics.Provider
}

func defaultConfig() config {
	return config{
		logger:            zerolog.Nop(),
		deadlineScanEvery: 100 * time.Millisecond,
		metrics:           metrics.NewNoopProvider(),
	}
}

// WithMetrics wires a metrics.Provider into the loop: a tick-duration
// histogram, a ready-queue-depth gauge, and a tasks-resumed counter.
// Defaults to a no-op provider.
func WithMetrics(p metrics.Provider) Option {
	return func(c *config) {
		if p != nil {
			c.metrics = p
		}
	}
}

// WithLogger enables structured debug logging of the tick loop. Disabled
// (a no-op logger) by default.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDeadlineScanInterval overrides the deadline scan interval used at
// the start of each Tick. Exposed for tests that want deterministic
// timeout behavior without waiting 100ms of wall-clock time.
func WithDeadlineScanInterval(d time.Duration) Option {
	return func(c *config) { c.deadlineScanEvery = d }
}
