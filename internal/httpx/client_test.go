package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/errors"
)

func newTestClient() *Client {
	c := New(5*time.Second, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	resp, err := newTestClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(resp.Body))
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient().Get(context.Background(), srv.URL)
	require.Error(t, err)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient()
	c.Retry.Attempts = 2
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
}

func TestMaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := newTestClient()
	c.MaxBody = 16
	c.Retry.Attempts = 1
	_, err := c.Get(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), RetryAfter(h))
	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, RetryAfter(h))
	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), RetryAfter(h))
}

func TestBackoff(t *testing.T) {
	r := Retry{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 2*time.Second, Backoff(1, r, 2*time.Second))
	d := Backoff(3, r, 0)
	assert.GreaterOrEqual(t, d, 400*time.Millisecond)
	assert.Less(t, d, 650*time.Millisecond)
	assert.GreaterOrEqual(t, Backoff(10, r, 0), time.Second)
}
