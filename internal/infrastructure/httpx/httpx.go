// Package httpx holds the retry and response helpers shared by the ERP and
// CRM HTTP adapters.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxResponseSize caps how much of a response body is read (32MB)
const MaxResponseSize = 32 * 1024 * 1024

// maxErrorBody caps how much of an error body is kept on a StatusError
const maxErrorBody = 2048

// StatusError is a non-2xx HTTP response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTPStatusCode returns the response status
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewStatusError builds a StatusError from a failed response and its body
func NewStatusError(resp *http.Response, body []byte) *StatusError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       text,
		RetryAfter: RetryAfter(resp.Header, time.Now()),
	}
}

// IsRetryableStatus reports whether a status code is worth retrying
func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// StatusCode returns the HTTP status carried by err, 0 when there is none
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
// It returns 0 when the header is absent or unparseable.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(ra); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// ReadBody reads at most MaxResponseSize bytes and closes the body
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
}

// NewTransport wraps base with OpenTelemetry client instrumentation. A nil
// base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// ---------------------------------------------------------------------------
// Retry policy
// ---------------------------------------------------------------------------

// RetryPolicy retries transport errors and retryable statuses with
// exponential backoff. A Retry-After on the response replaces the computed
// delay, capped at MaxRetryAfter.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetryAfter   time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxRetryAfter:   time.Minute,
	}
}

// Notify is called before each retry with the error and the wait
type Notify func(err error, attempt int, wait time.Duration)

// Do runs op until it succeeds, fails permanently or the retries run out.
// The returned error is the last error op returned.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}

	var lastErr error
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		lastErr = op(ctx)
		if lastErr == nil {
			return struct{}{}, nil
		}
		if !p.retryable(ctx, lastErr) {
			return struct{}{}, backoff.Permanent(lastErr)
		}
		if wait := p.retryAfter(lastErr); wait > 0 {
			return struct{}{}, &backoff.RetryAfterError{Duration: wait}
		}
		return struct{}{}, lastErr
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(max(p.MaxRetries, 0)+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			if notify != nil {
				notify(lastErr, attempt, wait)
			}
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return lastErr
}

func (p RetryPolicy) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return IsRetryableStatus(code)
	}
	var perm *PermanentError
	return !errors.As(err, &perm)
}

func (p RetryPolicy) retryAfter(err error) time.Duration {
	var se *StatusError
	if !errors.As(err, &se) || se.RetryAfter <= 0 {
		return 0
	}
	if p.MaxRetryAfter > 0 && se.RetryAfter > p.MaxRetryAfter {
		return p.MaxRetryAfter
	}
	return se.RetryAfter
}

// PermanentError marks a non-HTTP error that must not be retried, such as a
// malformed response body
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so RetryPolicy.Do gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
