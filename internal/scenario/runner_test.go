package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"marketconformance/config"
	"marketconformance/internal/stubexchange"
	"marketconformance/pkg/marketdata"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func stepFunc(phrase string, calls *[]string, err error) Step {
	return Step{Phrase: phrase, Run: func(context.Context, *Context) error {
		*calls = append(*calls, phrase)
		return err
	}}
}

// go test -v --run TestRunnerStopsAtFirstFailure
func TestRunnerStopsAtFirstFailure(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	features := []Feature{{
		Name: "F",
		Scenarios: []Scenario{
			{Name: "failing", Steps: []Step{
				stepFunc("one", &calls, nil),
				stepFunc("two", &calls, boom),
				stepFunc("three", &calls, nil),
			}},
			{Name: "passing", Steps: []Step{stepFunc("four", &calls, nil)}},
		},
	}}

	r := &Runner{Logger: zaptest.NewLogger(t)}
	report := r.Run(context.Background(), features, Filter{})

	assert.Equal(t, []string{"one", "two", "four"}, calls)
	require.Len(t, report.Results, 2)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Passed())
	assert.Equal(t, 1, report.Failed())

	failed := report.Failures()[0]
	assert.Equal(t, "failing", failed.Scenario)
	assert.Equal(t, "two", failed.FailedStep)
	assert.ErrorIs(t, failed.Err, boom)
	assert.Equal(t, 2, failed.StepsRun)
	assert.Equal(t, 3, failed.StepsTotal)
	assert.NotEqual(t, report.Results[0].ID, report.Results[1].ID)
}

// go test -v --run TestRunnerRecoversPanics
func TestRunnerRecoversPanics(t *testing.T) {
	features := []Feature{{Name: "F", Scenarios: []Scenario{{
		Name: "nil response",
		Steps: []Step{
			// reading a response no request recorded
			statusIs(200),
			{Phrase: "panics", Run: func(context.Context, *Context) error { panic("bad step") }},
		},
	}, {
		Name:  "panic",
		Steps: []Step{{Phrase: "panics", Run: func(context.Context, *Context) error { panic("bad step") }}},
	}}}}

	report := (&Runner{Logger: zap.NewNop()}).Run(context.Background(), features, Filter{})
	require.Len(t, report.Results, 2)
	assert.ErrorIs(t, report.Results[0].Err, errNoResponse)
	assert.ErrorContains(t, report.Results[1].Err, "step panicked: bad step")
}

// go test -v --run TestRunnerFreshContextPerScenario
func TestRunnerFreshContextPerScenario(t *testing.T) {
	var seen []*Context
	record := Step{Phrase: "record", Run: func(_ context.Context, sc *Context) error {
		seen = append(seen, sc)
		sc.Instrument = "dirty"
		return nil
	}}
	check := Step{Phrase: "check", Run: func(_ context.Context, sc *Context) error {
		if sc.Instrument != "dirty" {
			return errors.New("state lost within a scenario")
		}
		return nil
	}}
	features := []Feature{{Name: "F", Scenarios: []Scenario{
		{Name: "a", Steps: []Step{record, check}},
		{Name: "b", Steps: []Step{record, check}},
	}}}

	restBuilt := 0
	r := &Runner{
		Logger: zap.NewNop(),
		NewREST: func() *marketdata.RESTClient {
			restBuilt++
			return marketdata.NewRESTClient(config.RESTConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
		},
	}
	report := r.Run(context.Background(), features, Filter{})
	assert.True(t, report.OK())
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
	assert.NotSame(t, seen[0].REST, seen[1].REST)
	assert.Equal(t, 2, restBuilt)
}

// go test -v --run TestRunnerCancelled
func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	features := []Feature{{Name: "F", Scenarios: []Scenario{
		{Name: "a", Steps: []Step{{Phrase: "cancel", Run: func(context.Context, *Context) error {
			cancel()
			return nil
		}}, stepFunc("after cancel", &calls, nil)}},
		{Name: "b", Steps: []Step{stepFunc("never", &calls, nil)}},
	}}}

	report := (&Runner{Logger: zap.NewNop()}).Run(ctx, features, Filter{})
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, context.Canceled)
	assert.Empty(t, calls)
}

// go test -v --run TestFilter
func TestFilter(t *testing.T) {
	f := Feature{Name: "Candlestick API"}
	s := Scenario{Name: "Reject candlestick request with negative_count", Tags: []string{"rest", "negative"}}

	tests := []struct {
		filter Filter
		want   bool
	}{
		{Filter{}, true},
		{Filter{Feature: "candlestick"}, true},
		{Filter{Feature: "WebSocket"}, false},
		{Filter{Scenario: "NEGATIVE_COUNT"}, true},
		{Filter{Tag: "negative"}, true},
		{Filter{Tag: "@negative"}, true},
		{Filter{Tag: "neg"}, false},
		{Filter{Feature: "candle", Tag: "positive"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.filter.Match(f, s), "%+v", tt.filter)
	}

	run := config.RunConfig{Feature: "a", Scenario: "b", Tag: "c"}
	assert.Equal(t, Filter{Feature: "a", Scenario: "b", Tag: "c"}, FilterFrom(run))
}

// go test -v --run TestCatalogShape
func TestCatalogShape(t *testing.T) {
	features := Catalog(DefaultTiming(config.RunConfig{}), 10)
	names := map[string]bool{}
	total := 0
	for _, f := range features {
		require.NotEmpty(t, f.Scenarios, f.Name)
		for _, s := range f.Scenarios {
			total++
			assert.False(t, names[s.Name], "duplicate scenario %q", s.Name)
			names[s.Name] = true
			assert.NotEmpty(t, s.Tags, s.Name)
			require.NotEmpty(t, s.Steps, s.Name)
			assert.Regexp(t, `^(Given|When|Then) `, s.Steps[0].Phrase)
		}
	}
	assert.Len(t, features, 11)
	assert.GreaterOrEqual(t, total, 30)
}

func stubRunner(t *testing.T, opts stubexchange.Options) (*Runner, *stubexchange.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	srv := stubexchange.New(opts, logger)
	t.Cleanup(srv.Close)

	cfg := &config.Config{Exchange: config.ExchangeConfig{
		REST: config.RESTConfig{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second, UserAgent: "conformance-test"},
		WS:   config.WSConfig{URL: srv.WSURL(), ConnectTimeout: 2 * time.Second},
	}}
	return NewRunner(cfg, logger), srv
}

var fastTiming = Timing{
	MaxResponseTime: 2 * time.Second,
	Confirm:         2 * time.Second,
	Updates:         2 * time.Second,
	Continuous:      300 * time.Millisecond,
	Close:           time.Second,
}

// go test -v --run TestCatalogAgainstStub
func TestCatalogAgainstStub(t *testing.T) {
	r, srv := stubRunner(t, stubexchange.Options{PushInterval: 50 * time.Millisecond})

	report := r.Run(context.Background(), Catalog(fastTiming, 10), Filter{})
	for _, res := range report.Failures() {
		t.Errorf("%s / %s: step %q: %v", res.Feature, res.Scenario, res.FailedStep, res.Err)
	}
	assert.True(t, report.OK())
	assert.Equal(t, len(report.Results), report.Passed())

	// every scenario disconnects its streaming client
	assert.Eventually(t, func() bool { return srv.Sessions() == 0 }, 3*time.Second, 20*time.Millisecond)
}

// go test -v --run TestCatalogDetectsBrokenServer
func TestCatalogDetectsBrokenServer(t *testing.T) {
	r, srv := stubRunner(t, stubexchange.Options{})
	srv.Close()

	report := r.Run(context.Background(), Catalog(fastTiming, 10), Filter{Tag: "smoke"})
	require.Len(t, report.Results, 3)
	assert.Equal(t, 0, report.Passed())
	for _, res := range report.Results {
		if res.Feature == "WebSocket Market Data" {
			assert.Equal(t, "Then the connection should be established successfully", res.FailedStep)
			continue
		}
		assert.True(t, marketdata.IsTransportError(res.Err), "%s: %v", res.Scenario, res.Err)
	}
}

func endpointRunner(t *testing.T, restURL, wsURL string) *Runner {
	t.Helper()
	cfg := &config.Config{Exchange: config.ExchangeConfig{
		REST: config.RESTConfig{BaseURL: restURL, Timeout: 5 * time.Second, UserAgent: "conformance-test"},
		WS:   config.WSConfig{URL: wsURL, ConnectTimeout: 2 * time.Second},
	}}
	return NewRunner(cfg, zaptest.NewLogger(t))
}

// go test -v --run TestNegativeCandlestickOutcomes
func TestNegativeCandlestickOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		passed bool
	}{
		{"400", http.StatusBadRequest, `{"code":40004,"message":"Invalid instrument_name"}`, true},
		{"404", http.StatusNotFound, `{"code":40004,"message":"Not found"}`, true},
		{"422 plain", http.StatusUnprocessableEntity, `unprocessable`, true},
		{"200 empty", http.StatusOK, `{"code":0,"result":{"instrument_name":"INVALID_PAIR","interval":"1h","data":[]}}`, true},
		{"200 with data", http.StatusOK, `{"code":0,"result":{"instrument_name":"INVALID_PAIR","interval":"1h",` +
			`"data":[{"o":"1","h":"1","l":"1","c":"1","v":"1","t":1}]}}`, false},
		{"500", http.StatusInternalServerError, `<html>oops</html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			r := endpointRunner(t, srv.URL+"/exchange/v1/", "")
			report := r.Run(context.Background(), Catalog(fastTiming, 10),
				Filter{Scenario: "Reject candlestick request with invalid_instrument"})
			require.Len(t, report.Results, 1)
			res := report.Results[0]
			assert.Equal(t, tt.passed, res.Passed, "step %q: %v", res.FailedStep, res.Err)
			if !tt.passed {
				assert.Equal(t, "Then the request should be rejected or return no data", res.FailedStep)
			}
		})
	}
}

// bookServer confirms every subscription and then pushes books whose payload
// names instrument, whatever channel was requested.
func bookServer(t *testing.T, instrument string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var mu sync.Mutex
		write := func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			return conn.WriteJSON(v)
		}
		for {
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
				Params struct {
					Channels []string `json:"channels"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != "subscribe" || len(req.Params.Channels) == 0 {
				continue
			}
			channel := req.Params.Channels[0]
			_ = write(map[string]any{"id": req.ID, "method": "subscribe", "code": 0,
				"params": map[string]any{"channels": req.Params.Channels}})
			go func() {
				for {
					err := write(map[string]any{"id": -1, "method": "public/book", "params": map[string]any{
						"channel": channel, "subscription": channel,
						"data": []any{map[string]any{
							"instrument_name": instrument,
							"bids":            [][]string{{"100.0", "1.0", "1"}},
							"asks":            [][]string{{"101.0", "1.0", "1"}},
							"t":               time.Now().UnixMilli(),
						}},
					}})
					if err != nil {
						return
					}
					time.Sleep(20 * time.Millisecond)
				}
			}()
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/market"
}

// go test -v --run TestBookUpdatesMustNameInstrument
func TestBookUpdatesMustNameInstrument(t *testing.T) {
	filter := Filter{Scenario: "Subscribe to the order book with valid_subscription"}

	r := endpointRunner(t, "http://127.0.0.1:1/", bookServer(t, "ETHUSD-PERP"))
	report := r.Run(context.Background(), Catalog(fastTiming, 10), filter)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, `Then the order book data should be for "BTCUSD-PERP"`, res.FailedStep)
	assert.ErrorContains(t, res.Err, `instrument_name "ETHUSD-PERP", want "BTCUSD-PERP"`)

	r = endpointRunner(t, "http://127.0.0.1:1/", bookServer(t, "BTCUSD-PERP"))
	report = r.Run(context.Background(), Catalog(fastTiming, 10), filter)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Passed, "step %q: %v", report.Results[0].FailedStep, report.Results[0].Err)
}
