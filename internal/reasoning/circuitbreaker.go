package reasoning

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker. Zero values use defaults.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" toml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
	Interval    time.Duration `yaml:"interval" toml:"interval"`
}

// BreakerService wraps a Service with a circuit breaker. While the circuit is open
// calls fail fast with gobreaker.ErrOpenState, which the execution engine retries
// like any other transient failure.
type BreakerService struct {
	inner   Service
	breaker *gobreaker.CircuitBreaker[Response]
}

// WithCircuitBreaker wraps inner.
func WithCircuitBreaker(inner Service, cfg BreakerConfig, logger *slog.Logger) *BreakerService {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[Response](gobreaker.Settings{
		Name:        "reasoning",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &BreakerService{inner: inner, breaker: cb}
}

func (b *BreakerService) Generate(ctx context.Context, req Request) (Response, error) {
	return b.breaker.Execute(func() (Response, error) {
		return b.inner.Generate(ctx, req)
	})
}

// State reports the breaker state, for health output.
func (b *BreakerService) State() gobreaker.State {
	return b.breaker.State()
}
