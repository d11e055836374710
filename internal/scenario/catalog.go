package scenario

import (
	"strconv"
	"time"

	"marketconformance/config"
	"marketconformance/internal/fixtures"
	"marketconformance/internal/stream"
	"marketconformance/internal/validate"
	"marketconformance/pkg/marketdata"
)

// Timing bounds the waits of the catalog's steps.
type Timing struct {
	MaxResponseTime time.Duration // REST latency budget
	Confirm         time.Duration // subscription confirmation and error replies
	Updates         time.Duration // first book update
	Continuous      time.Duration // window that must see more updates
	Close           time.Duration
}

// DefaultTiming matches the waits of the original feature files.
func DefaultTiming(run config.RunConfig) Timing {
	t := Timing{
		MaxResponseTime: run.MaxResponseTime,
		Confirm:         3 * time.Second,
		Updates:         10 * time.Second,
		Continuous:      3 * time.Second,
		Close:           time.Second,
	}
	if t.MaxResponseTime <= 0 {
		t.MaxResponseTime = 5 * time.Second
	}
	return t
}

const (
	tagREST      = "rest"
	tagWS        = "websocket"
	tagPositive  = "positive"
	tagNegative  = "negative"
	tagSmoke     = "smoke"
	indexName    = "BTCUSD-INDEX"
	insuranceCcy = "USD"
)

// Catalog returns every feature of the suite. count is the candlestick count
// used by the basic scenario.
func Catalog(t Timing, count int) []Feature {
	if count <= 0 {
		count = 10
	}
	return []Feature{
		candlestickFeature(t, count),
		instrumentsFeature(t),
		bookFeature(t),
		tradesFeature(t),
		tickersFeature(t),
		insuranceFeature(t),
		valuationsFeature(t),
		settlementFeature(t),
		riskFeature(t),
		announcementsFeature(t),
		websocketFeature(t),
	}
}

func candlestickFeature(t Timing, count int) Feature {
	inst := fixtures.Instrument
	f := Feature{Name: "Candlestick API"}

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Get candlestick data for a valid instrument",
		Tags: []string{tagREST, tagPositive, tagSmoke},
		Steps: []Step{
			restClientReady(),
			requestCandlestick(inst, "1h", count),
			statusIs(200),
			responseCodeZero(),
			validCandlesticks(),
			instrumentNameIs(inst),
			timeframeIs("1h"),
			candleCountAtMost(count),
			candlesOHLC(),
			candlesChronological(),
			candleVolumes(),
			receivedWithin(t.MaxResponseTime),
		},
	})

	for _, tc := range fixtures.All(fixtures.PositiveCandlestick) {
		steps := []Step{
			restClientReady(),
			requestCandlestickCase(tc.Kind, tc.Name),
			statusIs(200),
			validCandlesticks(),
			instrumentNameIs(tc.InstrumentOr(inst)),
			timeframeIs(tc.TimeframeOr("")),
		}
		if tc.Count != nil {
			steps = append(steps, candleCountAtMost(*tc.Count))
		}
		steps = append(steps, candlesOHLC(), candlesChronological(), receivedWithin(t.MaxResponseTime))
		f.Scenarios = append(f.Scenarios, Scenario{
			Name:  "Get candlestick data with " + tc.Name,
			Tags:  []string{tagREST, tagPositive},
			Steps: steps,
		})
	}

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Get candlestick data within a time range",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestCandlestickRange(inst, string(marketdata.Timeframe5Min), 1),
			statusIs(200),
			validCandlesticks(),
			candlesWithinRange(),
			candlesChronological(),
		},
	})

	for _, tc := range fixtures.All(fixtures.NegativeCandlestick) {
		steps := []Step{restClientReady(), requestCandlestickCase(tc.Kind, tc.Name)}
		if tc.Name == "excessive_count" {
			steps = append(steps, statusIs(200, 400), excessiveCountHandled())
		} else {
			steps = append(steps, rejected())
		}
		f.Scenarios = append(f.Scenarios, Scenario{
			Name:  "Reject candlestick request with " + tc.Name,
			Tags:  []string{tagREST, tagNegative},
			Steps: steps,
		})
	}
	return f
}

func instrumentsFeature(t Timing) Feature {
	return Feature{Name: "Instruments API", Scenarios: []Scenario{{
		Name: "Get the list of supported instruments",
		Tags: []string{tagREST, tagPositive, tagSmoke},
		Steps: []Step{
			restClientReady(),
			requestInstruments(),
			statusIs(200),
			methodIs(marketdata.EndpointInstruments),
			bodyCheck("each instrument in result data should have valid attributes", validate.Instruments),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func bookFeature(t Timing) Feature {
	f := Feature{Name: "Order Book API"}
	for _, depth := range fixtures.ValidDepths() {
		f.Scenarios = append(f.Scenarios, Scenario{
			Name: "Get the order book with depth " + strconv.Itoa(depth),
			Tags: []string{tagREST, tagPositive},
			Steps: []Step{
				restClientReady(),
				requestBook(fixtures.Instrument, depth),
				statusIs(200),
				methodIs(marketdata.EndpointBook),
				restBookValid(),
				spreadNonNegative(),
				receivedWithin(t.MaxResponseTime),
			},
		})
	}
	return f
}

func tradesFeature(t Timing) Feature {
	const count = 5
	return Feature{Name: "Trades API", Scenarios: []Scenario{{
		Name: "Get recent public trades",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestTrades(fixtures.Instrument, count),
			statusIs(200),
			methodIs(marketdata.EndpointTrades),
			bodyCheck("each trade should have valid attributes", func(b []byte) error {
				return validate.Trades(b, fixtures.Instrument, count)
			}),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func tickersFeature(t Timing) Feature {
	return Feature{Name: "Tickers API", Scenarios: []Scenario{{
		Name: "Get the ticker for an instrument",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestTicker(fixtures.Instrument),
			statusIs(200),
			methodIs(marketdata.EndpointTickers),
			bodyCheck("the response should contain expected ticker fields", func(b []byte) error {
				return validate.Tickers(b, fixtures.Instrument)
			}),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func insuranceFeature(t Timing) Feature {
	return Feature{Name: "Insurance API", Scenarios: []Scenario{{
		Name: "Get insurance fund balances",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestInsurance(insuranceCcy, 10),
			statusIs(200),
			methodIs(marketdata.EndpointInsurance),
			bodyCheck("the response should include insurance data with value and timestamp", validate.Insurance),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func valuationsFeature(t Timing) Feature {
	return Feature{Name: "Valuations API", Scenarios: []Scenario{{
		Name: "Get index price valuations",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestValuations("index_price", indexName, 1),
			statusIs(200),
			methodIs(marketdata.EndpointValuations),
			bodyCheck("the response should contain data with value and timestamp", func(b []byte) error {
				return validate.Valuations(b, indexName)
			}),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func settlementFeature(t Timing) Feature {
	return Feature{Name: "Expired Settlement Price API", Scenarios: []Scenario{{
		Name: "Get expired settlement prices for futures",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestExpiredSettlement("FUTURE", 1),
			statusIs(200),
			methodIs(marketdata.EndpointExpiredSettlementPrice),
			bodyCheck("the response should contain settlement data with instrument name, expiry, value, and timestamp", validate.ExpiredSettlementPrices),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func riskFeature(t Timing) Feature {
	return Feature{Name: "Risk Parameters API", Scenarios: []Scenario{{
		Name: "Get risk parameters",
		Tags: []string{tagREST, tagPositive},
		Steps: []Step{
			restClientReady(),
			requestRiskParameters(),
			statusIs(200),
			methodIs(marketdata.EndpointRiskParameters),
			bodyCheck("base_currency_config should be a list of objects with required or optional fields", validate.RiskParameters),
			receivedWithin(t.MaxResponseTime),
		},
	}}}
}

func announcementsFeature(t Timing) Feature {
	f := Feature{Name: "Announcements API"}
	for _, filter := range []struct{ category, productType string }{
		{"", ""},
		{"system", ""},
		{"list", "Spot"},
	} {
		name := "Get announcements"
		if filter.category != "" {
			name += " in category " + filter.category
		}
		if filter.productType != "" {
			name += " for " + filter.productType
		}
		f.Scenarios = append(f.Scenarios, Scenario{
			Name: name,
			Tags: []string{tagREST, tagPositive},
			Steps: []Step{
				restClientReady(),
				requestAnnouncements(filter.category, filter.productType),
				statusIs(200),
				bodyCheck("each announcement should have required fields", validate.Announcements),
				receivedWithin(t.MaxResponseTime),
			},
		})
	}
	return f
}

func websocketFeature(t Timing) Feature {
	inst := fixtures.Instrument
	f := Feature{Name: "WebSocket Market Data"}

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Connect to the WebSocket server",
		Tags: []string{tagWS, tagPositive, tagSmoke},
		Steps: []Step{
			wsClientReady(),
			connect(),
			connectionEstablished(),
		},
	})

	for _, tc := range fixtures.All(fixtures.PositiveSubscription) {
		depth := tc.DepthOr(fixtures.DefaultDepth)
		f.Scenarios = append(f.Scenarios, Scenario{
			Name: "Subscribe to the order book with " + tc.Name,
			Tags: []string{tagWS, tagPositive},
			Steps: []Step{
				wsClientReady(),
				connect(),
				connectionEstablished(),
				subscribeCase(tc.Kind, tc.Name),
				subscriptionConfirmed(t.Confirm),
				bookUpdatesFor(tc.InstrumentOr(inst), t.Updates),
				bookStructureValid(),
				bookInstrumentIs(tc.InstrumentOr(inst)),
				bookOrdered(),
				bookPositive(),
				bookDepthAtMost(depth),
			},
		})
	}

	for _, tc := range fixtures.All(fixtures.BookUpdateSubscription) {
		instrument, depth, _ := stream.ParseBookChannel(tc.ChannelOr(""))
		f.Scenarios = append(f.Scenarios, Scenario{
			Name: "Subscribe to order book updates with " + tc.Name,
			Tags: []string{tagWS, tagPositive},
			Steps: []Step{
				wsClientReady(),
				connect(),
				connectionEstablished(),
				subscribeCase(tc.Kind, tc.Name),
				subscriptionConfirmed(t.Confirm),
				bookUpdatesFor(instrument, t.Updates),
				bookStructureValid(),
				bookInstrumentIs(instrument),
				bookDepthAtMost(depth),
			},
		})
	}

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Receive continuous order book updates",
		Tags: []string{tagWS, tagPositive},
		Steps: []Step{
			wsClientReady(),
			connect(),
			connectionEstablished(),
			subscribeBook(inst, fixtures.DefaultDepth),
			subscriptionConfirmed(t.Confirm),
			updatesWithin(t.Updates),
			updatesContinuous(t.Continuous),
		},
	})

	for _, tc := range fixtures.All(fixtures.NegativeSubscription) {
		f.Scenarios = append(f.Scenarios, Scenario{
			Name: "Reject order book subscription with " + tc.Name,
			Tags: []string{tagWS, tagNegative},
			Steps: []Step{
				wsClientReady(),
				connect(),
				connectionEstablished(),
				subscribeCase(tc.Kind, tc.Name),
				errorReceived(t.Confirm),
				errorIndicatesInvalidParams(),
			},
		})
	}

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Unsubscribe from the order book",
		Tags: []string{tagWS, tagPositive},
		Steps: []Step{
			wsClientReady(),
			connect(),
			connectionEstablished(),
			subscribeBook(inst, fixtures.DefaultDepth),
			subscriptionConfirmed(t.Confirm),
			unsubscribeBook(inst, fixtures.DefaultDepth),
			unsubscribeAcknowledged(t.Confirm),
		},
	})

	f.Scenarios = append(f.Scenarios, Scenario{
		Name: "Disconnect from the WebSocket server",
		Tags: []string{tagWS, tagPositive},
		Steps: []Step{
			wsClientReady(),
			connect(),
			connectionEstablished(),
			disconnect(),
			closedGracefully(t.Close),
			disconnect(),
			closedGracefully(t.Close),
		},
	})
	return f
}
