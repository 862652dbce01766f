// README: Resilient gateway wrapper: per-attempt timeout, retry with backoff, circuit breaker.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

type AdapterConfig struct {
	Timeout         time.Duration
	MaxAttempts     uint
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		Timeout:         10 * time.Second,
		MaxAttempts:     3,
		InitialBackoff:  200 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Adapter wraps a Gateway so that transient failures are retried with the
// same idempotency key and everything else surfaces as ErrPayment. Concurrent
// calls with the same key share one in-flight request.
type Adapter struct {
	gw    Gateway
	cfg   AdapterConfig
	cb    *gobreaker.CircuitBreaker
	group singleflight.Group
	log   logrus.FieldLogger
}

func NewAdapter(gw Gateway, cfg AdapterConfig, log logrus.FieldLogger) *Adapter {
	def := DefaultAdapterConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	threshold := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		// declines are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("payment breaker state change")
		},
	})
	return &Adapter{gw: gw, cfg: cfg, cb: cb, log: log}
}

func (a *Adapter) Authorize(ctx context.Context, req AuthorizeRequest) (Hold, error) {
	return call(ctx, a, OpAuthorize, req.IdempotencyKey, func(ctx context.Context) (Hold, error) {
		return a.gw.Authorize(ctx, req)
	})
}

func (a *Adapter) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	return call(ctx, a, OpCapture, req.IdempotencyKey, func(ctx context.Context) (CaptureResult, error) {
		return a.gw.Capture(ctx, req)
	})
}

func (a *Adapter) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	return call(ctx, a, OpCancel, req.IdempotencyKey, func(ctx context.Context) (CancelResult, error) {
		return a.gw.Cancel(ctx, req)
	})
}

func (a *Adapter) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	return call(ctx, a, OpRefund, req.IdempotencyKey, func(ctx context.Context) (RefundResult, error) {
		return a.gw.Refund(ctx, req)
	})
}

func call[T any](ctx context.Context, a *Adapter, op, key string, fn func(context.Context) (T, error)) (T, error) {
	v, err, _ := a.group.Do(op+"|"+key, func() (any, error) {
		return retry(ctx, a, op, key, fn)
	})
	res, _ := v.(T)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrPayment, err)
	}
	return res, nil
}

func retry[T any](ctx context.Context, a *Adapter, op, key string, fn func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.cfg.InitialBackoff
	eb.MaxInterval = a.cfg.MaxBackoff

	tries := 0
	return backoff.Retry(ctx, func() (T, error) {
		tries++
		res, err := attempt(ctx, a, op, fn)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		a.log.WithFields(logrus.Fields{
			"op":              op,
			"idempotency_key": key,
			"attempt":         tries,
		}).WithError(err).Warn("payment gateway transient failure")
		return res, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(a.cfg.MaxAttempts))
}

// attempt runs one bounded call through the breaker. A timeout is transient:
// the processor may or may not have acted, and the retry reuses the key.
func attempt[T any](ctx context.Context, a *Adapter, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := a.cb.Execute(func() (interface{}, error) {
		actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		res, err := fn(actx)
		if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			err = &GatewayError{Op: op, Code: "timeout", Transient: true, Err: err}
		}
		return res, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, &GatewayError{Op: op, Code: "unavailable", Transient: true, Err: err}
	}
	res, _ := v.(T)
	return res, err
}
