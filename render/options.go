package render

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ============================================================================
// SEQUENCER OPTIONS — Functional options for RenderAll()
// ============================================================================

// Option configures RenderAll via functional options pattern.
type Option func(*config)

// Observer is told about every target once its render has settled.
// err is nil on success.
type Observer func(t Target, err error)

type config struct {
	Timeout   time.Duration // per-target deadline; 0 = none
	Logger    logrus.FieldLogger
	Observers []Observer
}

// WithTimeout bounds each render call. A target that exceeds it fails with
// context.DeadlineExceeded and the batch moves on.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger progress goes to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithObserver registers a callback run after each target, in order.
func WithObserver(fn Observer) Option {
	return func(c *config) {
		if fn != nil {
			c.Observers = append(c.Observers, fn)
		}
	}
}

func applyOptions(opts []Option) *config {
	cfg := &config{
		Logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
