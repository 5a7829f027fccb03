package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetryAfter:   5 * time.Millisecond,
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 409} {
		assert.False(t, IsRetryableStatus(code), code)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	assert.Zero(t, RetryAfter(h, now))

	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, RetryAfter(h, now))

	h.Set("Retry-After", now.Add(10*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 10*time.Second, RetryAfter(h, now))

	h.Set("Retry-After", "soon")
	assert.Zero(t, RetryAfter(h, now))
}

func TestRetryPolicy_Do(t *testing.T) {
	t.Run("retries retryable statuses until success", func(t *testing.T) {
		calls := 0
		var notified []int
		err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return &StatusError{StatusCode: http.StatusServiceUnavailable}
			}
			return nil
		}, func(_ error, attempt int, _ time.Duration) {
			notified = append(notified, attempt)
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, notified)
	})

	t.Run("gives up after max retries with the last error", func(t *testing.T) {
		calls := 0
		err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
			calls++
			return &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Hour}
		}, nil)

		require.Error(t, err)
		assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
			calls++
			return &StatusError{StatusCode: http.StatusBadRequest}
		}, nil)

		assert.Equal(t, http.StatusBadRequest, StatusCode(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		decodeErr := errors.New("bad json")
		err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
			calls++
			return Permanent(decodeErr)
		}, nil)

		assert.ErrorIs(t, err, decodeErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transport errors", func(t *testing.T) {
		calls := 0
		err := fastPolicy(1).Do(context.Background(), func(context.Context) error {
			calls++
			return errors.New("connection reset")
		}, nil)

		assert.EqualError(t, err, "connection reset")
		assert.Equal(t, 2, calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := fastPolicy(3).Do(ctx, func(context.Context) error {
			return errors.New("unreachable")
		}, nil)

		assert.ErrorIs(t, err, context.Canceled)
	})
}
