package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(err error) bool { return errors.Is(err, errFlaky) },
		func(_ context.Context, attempt int) error {
			calls++
			if attempt < 2 {
				return errFlaky
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(err error) bool { return errors.Is(err, errFlaky) },
		func(context.Context, int) error {
			calls++
			return fatal
		})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsPolicy(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(error) bool { return true },
		func(context.Context, int) error {
			calls++
			return errFlaky
		})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestPolicy_DelayBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 4 * time.Second, MinDelay: 100 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 3).WithPolicy(fastPolicy(3))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 3).WithPolicy(fastPolicy(3))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
