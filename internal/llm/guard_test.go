package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func rateLimited() error {
	return &ProviderError{Provider: "mock", Code: 429, Message: "Too Many Requests"}
}

func TestGuard_RetriesRateLimitThenSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	calls := 0
	backend := &MockBackend{GetResponseFunc: func(context.Context, []Message) (string, error) {
		calls++
		if calls <= 2 {
			return "", rateLimited()
		}
		return "final answer", nil
	}}

	var retries []int
	g := NewGuard(backend, nil, DefaultRetry, silentLog(),
		WithSleep(noSleep),
		WithRetryObserver(func(retry int, _ error) { retries = append(retries, retry) }))

	out, err := g.GetResponse(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "final answer", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestGuard_ExhaustsAttempts(t *testing.T) {
	calls := 0
	backend := &MockBackend{BackendName: "chatgpt", GetResponseFunc: func(context.Context, []Message) (string, error) {
		calls++
		return "", rateLimited()
	}}
	g := NewGuard(backend, nil, DefaultRetry, silentLog(), WithSleep(noSleep))

	_, err := g.GetResponse(context.Background(), nil)
	var rl *RateLimitExceededError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 3, rl.Attempts)
	assert.Equal(t, "chatgpt", rl.Provider)
	assert.Equal(t, 3, calls)

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestGuard_BackoffDoublesAndCaps(t *testing.T) {
	backend := &MockBackend{GetResponseFunc: func(context.Context, []Message) (string, error) {
		return "", rateLimited()
	}}
	var delays []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	retry := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	g := NewGuard(backend, nil, retry, silentLog(), WithSleep(sleep))

	_, err := g.GetResponse(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, delays)
}

func TestGuard_TokenLimitNotRetried(t *testing.T) {
	calls := 0
	backend := &MockBackend{BackendName: "deepseek", GetResponseFunc: func(context.Context, []Message) (string, error) {
		calls++
		return "", &ProviderError{Provider: "deepseek", Code: 400, Message: "This model's maximum context length is 65536 tokens"}
	}}
	g := NewGuard(backend, nil, DefaultRetry, silentLog(), WithSleep(noSleep))

	_, err := g.GetResponse(context.Background(), nil)
	var tl *TokenLimitExceededError
	require.ErrorAs(t, err, &tl)
	assert.Equal(t, 65536, tl.Limit)
	assert.Equal(t, "deepseek", tl.Provider)
	assert.Equal(t, 1, calls)
}

func TestGuard_OtherErrorsPassThrough(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	backend := &MockBackend{GetResponseFunc: func(context.Context, []Message) (string, error) {
		calls++
		return "", boom
	}}
	g := NewGuard(backend, nil, DefaultRetry, silentLog(), WithSleep(noSleep))

	_, err := g.GetResponse(context.Background(), nil)
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestGuard_ContextCanceledDuringBackoff(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	backend := &MockBackend{GetResponseFunc: func(context.Context, []Message) (string, error) {
		cancel()
		return "", rateLimited()
	}}
	g := NewGuard(backend, nil, DefaultRetry, silentLog())

	_, err := g.GetResponse(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_LimiterWait(t *testing.T) {
	backend := &MockBackend{}
	g := NewGuard(backend, NewLimiter(60, 1), DefaultRetry, silentLog())

	out, err := g.GetResponse(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "mock response", out)

	// the bucket is now empty; a cancelled context must not block
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GetResponse(ctx, nil)
	assert.Error(t, err)
}

func TestGuard_NameAndUnwrap(t *testing.T) {
	backend := &MockBackend{BackendName: "claude"}
	g := NewGuard(backend, nil, RetryConfig{}, silentLog())
	assert.Equal(t, "claude", g.Name())
	assert.Same(t, backend, g.Unwrap())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 5))
	l := NewLimiter(120, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
