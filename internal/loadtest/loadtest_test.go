package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"marketconformance/internal/stubexchange"
	"marketconformance/pkg/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// go test -v --run TestRunConstantRate
func TestRunConstantRate(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	t.Cleanup(srv.Close)

	res, err := Run(context.Background(), srv.Client(), Options{
		URL:      srv.URL,
		Rate:     40,
		Duration: 500 * time.Millisecond,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	assert.InDelta(t, 20, res.Sent, 6)
	assert.Equal(t, int64(res.Sent), hits.Load())
	assert.Equal(t, res.Sent, res.ByStatus[http.StatusOK])
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Dropped)
	assert.LessOrEqual(t, res.P50, res.P95)
	assert.LessOrEqual(t, res.P95, res.Max)
	assert.Equal(t, []int{http.StatusOK}, res.Statuses())
}

// go test -v --run TestRunAgainstRateLimitedStub
func TestRunAgainstRateLimitedStub(t *testing.T) {
	stub := stubexchange.New(stubexchange.Options{RateLimit: 10}, zaptest.NewLogger(t))
	t.Cleanup(stub.Close)

	res, err := Run(context.Background(), nil, Options{
		URL:      stub.BaseURL() + marketdata.EndpointCandlestick + "?instrument_name=BTCUSD-PERP&timeframe=1m",
		Rate:     50,
		Duration: time.Second,
		Workers:  20,
	})
	require.NoError(t, err)

	assert.Positive(t, res.ByStatus[http.StatusOK])
	assert.Positive(t, res.ByStatus[http.StatusTooManyRequests])
	assert.Equal(t, res.ByStatus[http.StatusTooManyRequests], res.Failed)
	assert.Equal(t, res.Sent, res.ByStatus[http.StatusOK]+res.ByStatus[http.StatusTooManyRequests])
}

// go test -v --run TestRunTransportFailures
func TestRunTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res, err := Run(context.Background(), &http.Client{Timeout: time.Second}, Options{
		URL: url, Rate: 20, Duration: 200 * time.Millisecond, Workers: 2,
	})
	require.NoError(t, err)
	assert.Positive(t, res.Sent)
	assert.Equal(t, res.Sent, res.Failed)
	assert.Equal(t, res.Sent, res.ByStatus[0])
}

// go test -v --run TestRunDropsWhenWorkersBusy
func TestRunDropsWhenWorkersBusy(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	time.AfterFunc(400*time.Millisecond, func() { close(release) })
	res, err := Run(context.Background(), srv.Client(), Options{
		URL: srv.URL, Rate: 50, Duration: 300 * time.Millisecond, Workers: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Positive(t, res.Dropped)
}

// go test -v --run TestRunOptions
func TestRunOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"no url", Options{Rate: 1, Duration: time.Second}, "URL is required"},
		{"zero rate", Options{URL: "http://x", Duration: time.Second}, "rate must be positive"},
		{"zero duration", Options{URL: "http://x", Rate: 1}, "duration must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), nil, tt.opts)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	opts := Options{URL: "http://x", Rate: 100, Duration: time.Second}
	require.NoError(t, opts.validate())
	assert.Equal(t, 101, opts.Workers)
}

// go test -v --run TestPercentile
func TestPercentile(t *testing.T) {
	ms := func(v ...int) []time.Duration {
		out := make([]time.Duration, len(v))
		for i, x := range v {
			out[i] = time.Duration(x) * time.Millisecond
		}
		return out
	}
	sorted := ms(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	assert.Equal(t, 5*time.Millisecond, percentile(sorted, 0.50))
	assert.Equal(t, 10*time.Millisecond, percentile(sorted, 0.95))
	assert.Equal(t, time.Millisecond, percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 0.5))
}
