package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MarketState/internal/domain/models"
	xhttp "MarketState/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestDescribePostsPercentiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/describe", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body, 5)
		assert.Equal(t, "BTC", body["symbol"])
		assert.Equal(t, 90.0, body["potential"])
		assert.Nil(t, body["temperature"])
		_, _ = w.Write([]byte(`{"text":"  stretched and hot \n"}`))
	}))
	defer srv.Close()

	n := NewHTTPNarrator(srv.URL+"/", time.Second, 0)
	text, err := n.Describe(context.Background(), "BTC", models.Percentiles{
		Potential: f(90),
		Momentum:  f(10),
		Entropy:   f(50),
	})
	require.NoError(t, err)
	assert.Equal(t, "stretched and hot", text)
}

func TestDescribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	n := NewHTTPNarrator(srv.URL, time.Second, 2)
	n.base.backoff = time.Millisecond
	text, err := n.Describe(context.Background(), "BTC", models.Percentiles{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDescribeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewHTTPNarrator(srv.URL, time.Second, 3)
	_, err := n.Describe(context.Background(), "BTC", models.Percentiles{})
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDescribeNotConfigured(t *testing.T) {
	n := NewHTTPNarrator("", 0, 3)
	_, err := n.Describe(context.Background(), "BTC", models.Percentiles{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, n.base.Enabled())
}
