package llm

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/scoutbot/internal/logging"
	"golang.org/x/time/rate"
)

// RetryConfig bounds the retries a Guard makes on rate-limit errors.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetry allows three attempts (two retries).
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
	MaxBackoff:     10 * time.Second,
}

// Guard wraps a Backend with a token-bucket rate limiter and bounded
// exponential backoff on rate-limit errors.
type Guard struct {
	backend Backend
	limiter *rate.Limiter
	retry   RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
	observe func(retry int, err error)
	log     *logging.Logger
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithRetryObserver registers a callback invoked before each retry.
func WithRetryObserver(fn func(retry int, err error)) GuardOption {
	return func(g *Guard) { g.observe = fn }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) GuardOption {
	return func(g *Guard) { g.sleep = fn }
}

// NewGuard wraps backend. A nil limiter disables rate limiting.
func NewGuard(backend Backend, limiter *rate.Limiter, retry RetryConfig, log *logging.Logger, opts ...GuardOption) *Guard {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	g := &Guard{
		backend: backend,
		limiter: limiter,
		retry:   retry,
		sleep:   sleepCtx,
		log:     log.Sub("llm.guard").With("backend", backend.Name()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the wrapped backend's name.
func (g *Guard) Name() string { return g.backend.Name() }

// Unwrap returns the wrapped backend.
func (g *Guard) Unwrap() Backend { return g.backend }

// GetResponse calls the wrapped backend, waiting on the limiter before every
// attempt. Rate-limit errors are retried; once attempts run out the result is
// a RateLimitExceededError. Token-limit errors become TokenLimitExceededError.
// Anything else is returned unchanged.
func (g *Guard) GetResponse(ctx context.Context, messages []Message) (string, error) {
	backoff := g.retry.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		out, err := g.backend.GetResponse(ctx, messages)
		if err == nil {
			if attempt > 1 {
				g.log.Info().Int("attempt", attempt).Msg("model call succeeded after retry")
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		switch {
		case IsRateLimit(err):
			lastErr = err
		case IsTokenLimit(err):
			var tl *TokenLimitExceededError
			if errors.As(err, &tl) {
				return "", err
			}
			return "", &TokenLimitExceededError{
				Provider: g.backend.Name(),
				Limit:    ExtractTokenLimit(err.Error()),
				Err:      err,
			}
		default:
			return "", err
		}

		if attempt == g.retry.MaxAttempts {
			break
		}

		if g.observe != nil {
			g.observe(attempt, err)
		}
		g.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Err(err).Msg("rate limited, retrying")
		if err := g.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if g.retry.MaxBackoff > 0 && backoff > g.retry.MaxBackoff {
			backoff = g.retry.MaxBackoff
		}
	}

	g.log.Error().Int("attempts", g.retry.MaxAttempts).Msg("rate limit retries exhausted")
	return "", &RateLimitExceededError{
		Provider: g.backend.Name(),
		Attempts: g.retry.MaxAttempts,
		Err:      lastErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewLimiter builds a token bucket allowing rpm requests per minute with the
// given burst. rpm <= 0 disables limiting.
func NewLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}
