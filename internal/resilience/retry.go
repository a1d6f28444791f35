// Package resilience retries operations that fail transiently.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds retries with exponential backoff and jitter.
type Policy struct {
	// Attempts is the total number of tries including the first. Default 3.
	Attempts int
	// Backoff is the delay before the first retry. Default 250ms.
	Backoff time.Duration
	// MaxBackoff caps every delay. Default 10s.
	MaxBackoff time.Duration
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
	// Retryable overrides IsTransient.
	Retryable func(error) bool
	// Name labels retry log lines.
	Name string
}

// DefaultPolicy suits short network calls such as webhooks and connects.
func DefaultPolicy(name string) Policy {
	return Policy{Attempts: 3, Backoff: 250 * time.Millisecond, MaxBackoff: 10 * time.Second, Jitter: 0.2, Name: name}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay returns the wait before retry n (0-based).
func (p Policy) delay(n int) time.Duration {
	d := math.Min(float64(p.Backoff)*math.Pow(2, float64(n)), float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()
	var err error
	for n := 0; n < p.Attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || n == p.Attempts-1 {
			return err
		}
		wait := p.delay(n)
		zap.L().Warn("resilience: retrying",
			zap.String("operation", p.Name),
			zap.Int("attempt", n+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
