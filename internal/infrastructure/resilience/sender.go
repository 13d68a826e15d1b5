package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/port"
)

// Config holds retry and circuit breaker settings for outbound delivery
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	// BreakerMinRequests is the sample size before the failure ratio applies
	BreakerMinRequests uint32
	FailureRatio       float64
}

func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.BreakerMaxRequests == 0 {
		c.BreakerMaxRequests = 1
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = 30 * time.Second
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 60 * time.Second
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 5
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	return c
}

// retryable is implemented by errors that know whether a resend can succeed
type retryable interface {
	Retryable() bool
}

// Sender wraps a MessageSender with a circuit breaker and bounded
// exponential retry
type Sender struct {
	next    port.MessageSender
	breaker *gobreaker.CircuitBreaker
	cfg     Config
	logger  *zap.Logger
}

// NewSender creates a resilient sender named for its breaker
func NewSender(name string, next port.MessageSender, cfg Config, logger *zap.Logger) *Sender {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// rejected requests say nothing about the remote service's health
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Sender{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
		logger:  logger,
	}
}

// SendMessage delivers through the breaker, retrying transient failures
func (s *Sender) SendMessage(ctx context.Context, openID string, content string) error {
	attempt := 0
	operation := func() error {
		attempt++
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.next.SendMessage(ctx, openID, content)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || isPermanent(err) {
			return backoff.Permanent(err)
		}
		s.logger.Debug("Delivery attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx))
}

// State reports the breaker state, for health checks
func (s *Sender) State() gobreaker.State {
	return s.breaker.State()
}

func isPermanent(err error) bool {
	var r retryable
	return errors.As(err, &r) && !r.Retryable()
}

var _ port.MessageSender = (*Sender)(nil)
