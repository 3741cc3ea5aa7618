package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// RetryConfig bounds the retries made for transient gateway failures.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures is the number of consecutive transient failures that
	// opens the circuit; BreakerTimeout is how long it stays open.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultRetryConfig is used when fields are left zero.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	BreakerFailures: 5,
	BreakerTimeout:  30 * time.Second,
}

// Resilient decorates a Client with bounded exponential retries and a circuit
// breaker. Only ErrGatewayUnavailable and ErrVerification are retried; a
// false verification result is returned as is.
type Resilient struct {
	next    Client
	cfg     RetryConfig
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

func NewResilient(next Client, cfg RetryConfig, logger *zap.Logger) *Resilient {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = DefaultRetryConfig.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = DefaultRetryConfig.MaxInterval
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultRetryConfig.BreakerFailures
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = DefaultRetryConfig.BreakerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    next.Name(),
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Gateway circuit breaker state changed",
				zap.String("gateway", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Resilient{next: next, cfg: cfg, breaker: breaker, logger: logger}
}

func (r *Resilient) Name() string { return r.next.Name() }

func (r *Resilient) CreateOrder(ctx context.Context, amountMinor int64, receipt string) (*Order, error) {
	var order *Order
	err := r.retry(ctx, "create_order", ErrGatewayUnavailable, func() error {
		res, err := r.breaker.Execute(func() (any, error) {
			return r.next.CreateOrder(ctx, amountMinor, receipt)
		})
		if err != nil {
			return err
		}
		order = res.(*Order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Resilient) Verify(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	var ok bool
	err := r.retry(ctx, "verify", ErrVerification, func() error {
		res, err := r.breaker.Execute(func() (any, error) {
			return r.next.Verify(ctx, gatewayOrderID, paymentID, signature)
		})
		if err != nil {
			return err
		}
		ok = res.(bool)
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Resilient) retry(ctx context.Context, op string, transient error, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%w: %v", transient, err))
		case isTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Gateway call failed, retrying",
			zap.String("gateway", r.next.Name()),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx), notify)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrVerification)
}
