package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

func testDataClient(t *testing.T, handler http.HandlerFunc) (*DataClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewDataClient(srv.URL, nil)
	c.retryDelay = time.Millisecond
	return c, srv
}

func TestActivities_FiltersNonTradeTypes(t *testing.T) {
	c, _ := testDataClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TRADE", r.URL.Query().Get("type"))
		w.Write([]byte(`[
			{"type":"TRADE","side":"BUY","usdcSize":5,"price":0.5,"size":10,"transactionHash":"0xaaa"},
			{"type":"REDEEM","usdcSize":3}
		]`))
	})

	acts, err := c.Activities(context.Background(), "0x1111", 50)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "0xaaa", acts[0].TxHash)
}

func TestGet_RetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := testDataClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})

	_, err := c.Positions(context.Background(), "0x1111")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c, _ := testDataClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "still down", http.StatusServiceUnavailable)
	})

	_, err := c.Positions(context.Background(), "0x1111")
	require.Error(t, err)
	assert.Equal(t, int32(dataMaxAttempts), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := testDataClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such wallet", http.StatusNotFound)
	})

	_, err := c.Positions(context.Background(), "0x1111")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_StopsWhenContextCancelled(t *testing.T) {
	var calls atomic.Int32
	c, _ := testDataClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "flapping", http.StatusInternalServerError)
	})
	c.retryDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Positions(ctx, "0x1111")
		done <- err
	}()

	// Let the first attempt fail, then cancel during the backoff sleep.
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
	assert.Equal(t, int32(1), calls.Load())
}
