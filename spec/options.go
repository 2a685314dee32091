package spec

import (
	"github.com/sirupsen/logrus"

	"github.com/spektr-org/chartspec/schema"
)

// ============================================================================
// BUILD OPTIONS — Functional options for Build()
// ============================================================================

// Option configures Build and DeriveAggregateOverlay.
type Option func(*config)

type config struct {
	Schemas map[string]*schema.Config // data URL → discovered source schema
	Logger  logrus.FieldLogger
}

// WithSchema declares the source schema for the data at url. It closes the
// scope of any DataRef pointing at url that does not list its own Fields.
func WithSchema(url string, sch *schema.Config) Option {
	return func(c *config) {
		if sch == nil {
			return
		}
		if c.Schemas == nil {
			c.Schemas = map[string]*schema.Config{}
		}
		c.Schemas[url] = sch
	}
}

// WithLogger sets the logger build diagnostics go to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.Logger = l
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

// sourceScope returns the fields a data reference is known to provide.
func (c *config) sourceScope(d DataRef) scope {
	if len(d.Fields) > 0 {
		return closedScope(d.Fields...)
	}
	if sch, ok := c.Schemas[d.URL]; ok && d.URL != "" {
		return closedScope(sch.FieldKeys()...)
	}
	if d.IsInline() {
		s := closedScope()
		for _, row := range d.Values {
			for k := range row {
				s.fields[k] = true
			}
		}
		return s
	}
	return openScope()
}
