package houston

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Notify_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/notify", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", time.Second, logr.Discard())
	err := c.Notify(t.Context(), uuid.New(), StatusAccepted, false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestClient_Notify_EmptyBaseURLIsNoop(t *testing.T) {
	c := NewClient("", "", time.Second, logr.Discard())
	err := c.Notify(t.Context(), uuid.New(), StatusCompleted, true)
	require.NoError(t, err)
}

func TestClient_Notify_ServerErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, logr.Discard())
	err := c.Notify(t.Context(), uuid.New(), StatusAccepted, false)
	require.NoError(t, err)
	assert.Equal(t, 1, c.circuitBreaker.failureCount)
}

func TestClient_Notify_DialErrorIsSwallowed(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", 50*time.Millisecond, logr.Discard())
	err := c.Notify(t.Context(), uuid.New(), StatusAccepted, false)
	require.NoError(t, err)
}

func TestCircuitBreaker_OpensAfterMaxFailuresThenSkips(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, logr.Discard())
	c.circuitBreaker.maxFailures = 2

	require.NoError(t, c.Notify(t.Context(), uuid.New(), StatusAccepted, false))
	require.NoError(t, c.Notify(t.Context(), uuid.New(), StatusAccepted, false))
	assert.Equal(t, circuitOpen, c.circuitBreaker.state)

	// circuit is open: this call must be skipped without reaching the server.
	hits.Store(0)
	c.httpClient = srv.Client()
	require.NoError(t, c.Notify(t.Context(), uuid.New(), StatusAccepted, false))
	assert.Equal(t, int32(0), hits.Load())
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := &circuitBreaker{maxFailures: 1, resetTimeout: time.Millisecond, state: circuitOpen, lastFailTime: time.Now().Add(-time.Second)}
	require.NoError(t, b.check())
	assert.Equal(t, circuitHalfOpen, b.state)
}
