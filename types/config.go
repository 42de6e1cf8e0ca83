package types

import "time"

// Configuration carries component-specific parameters (test periods,
// rule operands, action settings) lifted from whatever front-end the
// embedder uses — the core never parses a config file itself (§1).
//
// Use mapstructure-decoding (see this package's DecodeInto helper) to
// turn a Configuration into a typed struct at Init time.
type Configuration map[string]any

// Copy returns a shallow copy; component Init methods take ownership of
// their configuration and callers should not mutate it afterward.
func (c Configuration) Copy() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Tiered scheduling periods (§4.4). Values other than these three route
// to the User queue at their own period.
const (
	PeriodFast   = 5 * time.Second
	PeriodNormal = 60 * time.Second
	PeriodSlow   = 1 * time.Hour
)

// Config is the engine-wide configuration, built with the functional
// options pattern so an embedder only overrides what it needs.
type Config struct {
	Logger Logger

	// Severities is the Severity→health-weight table (§4.8). Defaults
	// to DefaultSeverityTable().
	Severities SeverityTable

	// ReclaimInterval is the reclaimer's wake period (§4.3); default ~12s.
	ReclaimInterval time.Duration
	// ReclaimBackoff is the short re-arm pause used while the queue is
	// still non-empty after a drain pass; default ~5s.
	ReclaimBackoff time.Duration

	// FastPeriod is the tier used for the confidence convergence rate
	// in §4.8 ("Δ depends on the fast tier, not the individual test's
	// period" — Open Question 3, preserved as specified).
	FastPeriod time.Duration

	// WorkerCount sizes the scheduler's dispatch pool (§4.4, §5).
	WorkerCount int

	// MaxSerialRules and MaxCompNesting bound DAG traversals (§4.5).
	MaxSerialRules int
	MaxCompNesting int

	// HandleTTL is how long an unused CLI snapshot handle (§6) survives
	// before being garbage collected; default 12h.
	HandleTTL time.Duration

	// HealthThreshold is the default component health crossing point
	// that triggers a component_health_changed notification (§4.9
	// "Health crossings above/below configured thresholds emit
	// component_health_changed"). A component's own threshold can be
	// overridden after creation; 0 disables crossing notifications for
	// a component that opts out.
	HealthThreshold int
}

// Option configures a Config; see WithLogger, WithSeverities, etc.
type Option func(*Config)

func NewConfig(opts ...Option) Config {
	c := Config{
		Logger:          DefaultLogger(),
		Severities:      DefaultSeverityTable(),
		ReclaimInterval: 12 * time.Second,
		ReclaimBackoff:  5 * time.Second,
		FastPeriod:      PeriodFast,
		WorkerCount:     8,
		MaxSerialRules:  25,
		MaxCompNesting:  255,
		HandleTTL:       12 * time.Hour,
		HealthThreshold: 500,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func WithSeverities(t SeverityTable) Option {
	return func(c *Config) { c.Severities = t }
}

func WithReclaimTiming(interval, backoff time.Duration) Option {
	return func(c *Config) { c.ReclaimInterval = interval; c.ReclaimBackoff = backoff }
}

func WithFastPeriod(d time.Duration) Option {
	return func(c *Config) { c.FastPeriod = d }
}

func WithWorkerCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.WorkerCount = n
		}
	}
}

func WithDepthLimits(maxSerialRules, maxCompNesting int) Option {
	return func(c *Config) { c.MaxSerialRules = maxSerialRules; c.MaxCompNesting = maxCompNesting }
}

func WithHandleTTL(d time.Duration) Option {
	return func(c *Config) { c.HandleTTL = d }
}

func WithHealthThreshold(threshold int) Option {
	return func(c *Config) { c.HealthThreshold = threshold }
}
