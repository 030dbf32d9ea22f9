package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	ok, failed atomic.Int32
}

func (o *countingObserver) ObserveFetchAttempt(ok bool) {
	if ok {
		o.ok.Add(1)
		return
	}
	o.failed.Add(1)
}

func newTestFetcher(obs AttemptObserver) *Fetcher {
	return New(Options{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Timeout:     2 * time.Second,
		Observer:    obs,
	})
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x89, 0x50})
	}))
	t.Cleanup(srv.Close)

	obs := &countingObserver{}
	body, err := newTestFetcher(obs).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 0x50}, body)
	require.EqualValues(t, 1, obs.ok.Load())
	require.EqualValues(t, 0, obs.failed.Load())
}

func TestFetch_AlwaysFailingURLStopsAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	obs := &countingObserver{}
	body, err := newTestFetcher(obs).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	require.Nil(t, body)
	require.EqualValues(t, 3, hits.Load())
	require.EqualValues(t, 3, obs.failed.Load())
}

func TestFetch_RecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("img"))
	}))
	t.Cleanup(srv.Close)

	body, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []byte("img"), body)
	require.EqualValues(t, 3, hits.Load())
}

func TestFetch_NotFoundIsRetriedThenFails(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestFetcher(nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorContains(t, err, "404")
	require.EqualValues(t, 3, hits.Load())
}

func TestFetch_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher(nil).Fetch(context.Background(), url)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestFetch_MissingURL(t *testing.T) {
	t.Parallel()

	_, err := newTestFetcher(nil).Fetch(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestFetch_SingleAttemptReportsObserver(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	obs := &countingObserver{}
	f := New(Options{MaxAttempts: 1, Timeout: time.Second, Observer: obs})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNetwork)
	require.EqualValues(t, 1, hits.Load())
	require.EqualValues(t, 1, obs.failed.Load())
}
