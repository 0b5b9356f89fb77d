package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/auction-indexer/internal/circuitbreaker"
	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"name":"Ape #1","image":"ipfs://Qm/1.png"}`))
		case "/bad":
			_, _ = w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Timeout: time.Second}, nil)
	ctx := context.Background()

	var doc nftDocument
	require.NoError(t, c.GetJSON(ctx, srv.URL+"/ok", &doc))
	assert.Equal(t, "Ape #1", *doc.Name)
	assert.Nil(t, doc.Description)

	assert.Error(t, c.GetJSON(ctx, srv.URL+"/bad", &doc))

	err := c.GetJSON(ctx, srv.URL+"/missing", &doc)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPClient_Exists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/logo.png" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Timeout: time.Second}, nil)
	ok, err := c.Exists(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), srv.URL+"/other.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Timeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Hour}, nil)
	require.NoError(t, c.Check(context.Background()))
	var doc nftDocument
	for i := 0; i < 4; i++ {
		assert.Error(t, c.GetJSON(context.Background(), srv.URL, &doc))
	}

	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "open breaker must short-circuit")

	err := c.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetHTTPStatusCode(err))
}

func TestHTTPClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Timeout: time.Second, BreakerFailures: 1}, nil)
	for i := 0; i < 3; i++ {
		ok, err := c.Exists(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
}
