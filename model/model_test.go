package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
)

func TestClassifyHTTP(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		status int
		kind   string
	}{
		{http.StatusUnauthorized, "AuthenticationFailed"},
		{http.StatusForbidden, "AuthenticationFailed"},
		{http.StatusTooManyRequests, "RateLimited"},
		{http.StatusRequestTimeout, "Timeout"},
		{http.StatusGatewayTimeout, "Timeout"},
		{http.StatusInternalServerError, "ProviderUnavailable"},
		{529, "ProviderUnavailable"},
		{http.StatusBadRequest, "InvalidArgument"},
		{http.StatusTeapot, "Internal"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ClassifyHTTP(tt.status, nil, cause)
			assert.Equal(t, tt.kind, core.KindOf(err))
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestClassifyHTTP_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := ClassifyHTTP(http.StatusTooManyRequests, h, nil)
	d, ok := core.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, d)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	_, ok := ParseRetryAfter(nil, now)
	assert.False(t, ok)

	h := http.Header{}
	h.Set("Retry-After-Ms", "250")
	d, ok := ParseRetryAfter(h, now)
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	h = http.Header{}
	h.Set("Retry-After", now.Add(3*time.Second).Format(http.TimeFormat))
	d, ok = ParseRetryAfter(h, now)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	h.Set("Retry-After", "soon")
	_, ok = ParseRetryAfter(h, now)
	assert.False(t, ok)
}

func TestClassifyError(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
	assert.Equal(t, "ProviderUnavailable", core.KindOf(ClassifyError(errors.New("dial tcp: connection refused"))))
	assert.Equal(t, "Timeout", core.KindOf(ClassifyError(context.DeadlineExceeded)))
	assert.Equal(t, "Internal", core.KindOf(ClassifyError(errors.New("weird"))))

	auth := fmt.Errorf("%w: bad key", core.ErrAuthenticationFailed)
	assert.Same(t, auth, ClassifyError(auth))
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestRetrier(rec *sleepRecorder) *Retrier {
	return NewRetrier(func(o *RetryOptions) {
		o.Sleep = rec.sleep
		o.AttemptTimeout = 0
	})
}

func TestRetrier_Delay(t *testing.T) {
	r := NewRetrier()
	assert.Equal(t, 500*time.Millisecond, r.Delay(1, nil))
	assert.Equal(t, time.Second, r.Delay(2, nil))
	assert.Equal(t, 2*time.Second, r.Delay(3, nil))
	assert.Equal(t, 30*time.Second, r.Delay(12, nil))

	rl := &core.RateLimitError{RetryAfter: 5 * time.Second}
	assert.Equal(t, 5*time.Second, r.Delay(1, rl), "retry-after wins when larger")
	small := &core.RateLimitError{RetryAfter: 10 * time.Millisecond}
	assert.Equal(t, time.Second, r.Delay(2, small))
}

func TestRetrier_HonorsRetryAfter(t *testing.T) {
	rec := &sleepRecorder{}
	p := NewMockProvider("m").
		ThenError(&core.RateLimitError{RetryAfter: 3 * time.Second}).
		ThenText("ok")

	resp, attempts, err := newTestRetrier(rec).Do(context.Background(), func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{3 * time.Second}, rec.delays)
}

func TestRetrier_AuthNotRetried(t *testing.T) {
	rec := &sleepRecorder{}
	p := NewMockProvider("m").ThenError(fmt.Errorf("%w: invalid key", core.ErrAuthenticationFailed))
	wrapped := WithRetry(p, newTestRetrier(rec))

	_, err := wrapped.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, core.ErrAuthenticationFailed)
	assert.Equal(t, 1, p.Calls())
	assert.Empty(t, rec.delays)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	p := NewMockProvider("m").Always(Step{Err: fmt.Errorf("%w: 503", core.ErrProviderUnavailable)})

	_, err := WithRetry(p, newTestRetrier(rec)).Complete(context.Background(), Request{})
	require.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.Equal(t, 4, p.Calls())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, rec.delays)
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(func(o *RetryOptions) {
		o.Sleep = rec.sleep
		o.MaxAttempts = 2
		o.AttemptTimeout = 20 * time.Millisecond
	})
	p := NewMockProvider("m").
		Then(Step{Delay: time.Second, Response: TextResponse("late")}).
		ThenText("fast")

	resp, attempts, err := r.Do(context.Background(), func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, Request{})
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewMockProvider("m").Always(Step{Err: core.ErrProviderUnavailable})

	_, attempts, err := NewRetrier().Do(ctx, func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, Request{})
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider("mock-1").
		ThenToolCalls(core.ToolCall{ID: "c1", Name: "get_weather", Arguments: []byte(`{"location":"Paris"}`)})

	req := Request{Messages: []core.Message{core.NewUserMessage("weather?")}}
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, KindToolCalls, resp.Kind)
	assert.Equal(t, "mock-1", resp.Model)
	require.Len(t, resp.ToolCalls, 1)

	resp, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, KindText, resp.Kind)
	assert.Equal(t, "Mock response to: weather?", resp.Content)

	assert.Equal(t, 2, p.Calls())
	assert.Len(t, p.Requests()[0].Messages, 1)
	assert.True(t, p.Info().SupportsTools)
}

func TestCompletionFunc(t *testing.T) {
	fn := CompletionFunc(NewMockProvider("m"))
	out, err := fn(context.Background(), "summarize this")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: summarize this", out)
}

func TestNewResponse(t *testing.T) {
	assert.Equal(t, KindText, NewResponse("x", nil, core.Usage{}, "stop").Kind)
	assert.Equal(t, KindToolCalls, ToolCallResponse(core.ToolCall{ID: "1"}).Kind)
}
