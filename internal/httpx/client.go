// Package httpx is a small retrying HTTP client for downloading remote
// assets. Non-2xx responses become *StatusError so callers can inspect them.
package httpx

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
)

// StatusError carries status and body of a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 300))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Retry controls how failed attempts are repeated.
type Retry struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Any5xx retries every 5xx status on top of Statuses.
	Any5xx   bool
	Statuses map[int]bool
}

func DefaultRetry() Retry {
	return Retry{
		Attempts: 4,
		Base:     500 * time.Millisecond,
		Max:      10 * time.Second,
		Any5xx:   true,
		Statuses: map[int]bool{
			http.StatusTooManyRequests: true,
			http.StatusRequestTimeout:  true,
		},
	}
}

func (r Retry) retryable(code int) bool {
	return r.Statuses[code] || r.Any5xx && code >= 500 && code <= 599
}

// Response is a fully read response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Client struct {
	HTTP  *http.Client
	Retry Retry
	// MaxBody caps the bytes read from one response; 0 means no cap.
	MaxBody int64

	log   *logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func New(timeout time.Duration, logg *logger.Logger) *Client {
	if logg == nil {
		logg = logger.NewNop()
	}
	return &Client{
		HTTP:  &http.Client{Timeout: timeout},
		Retry: DefaultRetry(),
		log:   logg.With("component", "httpx"),
		sleep: sleepCtx,
	}
}

// Get fetches url, retrying transient network errors and retryable statuses.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// Do runs the request built by build until it succeeds, fails permanently
// or the attempts run out. The body is always drained so connections are reused.
func (c *Client) Do(ctx context.Context, build func(context.Context) (*http.Request, error)) (*Response, error) {
	r := c.Retry
	if r.Attempts <= 0 {
		r = DefaultRetry()
	}

	var last error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}

		resp, err := c.HTTP.Do(req)
		if err == nil {
			var body []byte
			body, err = c.read(resp.Body)
			if err == nil {
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					return &Response{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
				}
				serr := &StatusError{
					Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode,
					Header: resp.Header.Clone(), Body: body,
				}
				if !r.retryable(resp.StatusCode) {
					return nil, serr
				}
				last = serr
				if attempt < r.Attempts {
					if err := c.wait(ctx, attempt, r, RetryAfter(resp.Header)); err != nil {
						return nil, err
					}
				}
				continue
			}
		}

		if !transient(err) {
			return nil, err
		}
		last = err
		if attempt < r.Attempts {
			if err := c.wait(ctx, attempt, r, 0); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.Wrapf(last, "giving up after %d attempts", r.Attempts)
}

func (c *Client) read(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	if c.MaxBody > 0 {
		b, err := io.ReadAll(io.LimitReader(rc, c.MaxBody+1))
		if err == nil && int64(len(b)) > c.MaxBody {
			return nil, errors.Newf("response larger than %d bytes", c.MaxBody)
		}
		return b, err
	}
	return io.ReadAll(rc)
}

func (c *Client) wait(ctx context.Context, attempt int, r Retry, hint time.Duration) error {
	d := Backoff(attempt, r, hint)
	c.log.Debug("retrying request", "attempt", attempt, "delay", d)
	return c.sleep(ctx, d)
}

// Backoff returns the delay before the next attempt: the server's
// Retry-After hint when present, else exponential with jitter.
func Backoff(attempt int, r Retry, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	d := r.Base << (attempt - 1)
	if d > r.Max || d <= 0 {
		d = r.Max
	}
	return d + time.Duration(rand.IntN(250))*time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof")
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
