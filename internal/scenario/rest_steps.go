package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"marketconformance/internal/fixtures"
	"marketconformance/internal/stream"
	"marketconformance/internal/validate"
	"marketconformance/pkg/marketdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func restClientReady() Step {
	return given("the REST API client is initialized", func(_ context.Context, sc *Context) error {
		if sc.REST == nil {
			return errors.New("REST client not initialized")
		}
		return nil
	})
}

// requestCandlestick sends count only when it is positive.
func requestCandlestick(instrument, timeframe string, count int) Step {
	phrase := fmt.Sprintf("I request candlestick data for %q with timeframe %q and count %d", instrument, timeframe, count)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		p := marketdata.CandlestickParams{Instrument: instrument, Timeframe: timeframe}
		if count > 0 {
			p.Count = marketdata.Int(count)
		}
		return sc.record(sc.REST.GetCandlestick(ctx, p))
	})
}

func requestCandlestickRange(instrument, timeframe string, hours int) Step {
	phrase := fmt.Sprintf("I request candlestick data for %q with timeframe %q from %d hour ago to now", instrument, timeframe, hours)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		now := time.Now()
		sc.Instrument = instrument
		sc.RangeFrom = now.Add(-time.Duration(hours) * time.Hour).UnixMilli()
		sc.RangeTo = now.UnixMilli()
		return sc.record(sc.REST.GetCandlestick(ctx, marketdata.CandlestickParams{
			Instrument: instrument,
			Timeframe:  timeframe,
			StartTS:    marketdata.Int64(sc.RangeFrom),
			EndTS:      marketdata.Int64(sc.RangeTo),
		}))
	})
}

// requestCandlestickCase sends exactly the parameters the fixture sets.
func requestCandlestickCase(kind fixtures.Kind, name string) Step {
	phrase := fmt.Sprintf("I request candlestick data with parameters %q", name)
	if kind == fixtures.NegativeCandlestick {
		phrase = fmt.Sprintf("I request candlestick data with invalid parameters %q", name)
	}
	return when(phrase, func(ctx context.Context, sc *Context) error {
		tc, err := fixtures.Lookup(kind, name)
		if err != nil {
			return err
		}
		sc.Case = tc
		sc.Instrument = tc.InstrumentOr("")
		return sc.record(sc.REST.GetCandlestick(ctx, marketdata.CandlestickParams{
			Instrument: tc.InstrumentOr(""),
			Timeframe:  tc.TimeframeOr(""),
			Count:      tc.Count,
			StartTS:    tc.StartTS,
			EndTS:      tc.EndTS,
		}))
	})
}

func requestInstruments() Step {
	return when("I request the list of supported instruments from the public API", func(ctx context.Context, sc *Context) error {
		return sc.record(sc.REST.GetInstruments(ctx))
	})
}

func requestBook(instrument string, depth int) Step {
	phrase := fmt.Sprintf("I request the order book for %q with depth %d from the public API", instrument, depth)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		return sc.record(sc.REST.GetBook(ctx, instrument, depth))
	})
}

func requestTrades(instrument string, count int) Step {
	phrase := fmt.Sprintf("I request %d public trades for %q from the API", count, instrument)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		return sc.record(sc.REST.GetTrades(ctx, instrument, count))
	})
}

func requestTicker(instrument string) Step {
	return when(fmt.Sprintf("I request the ticker for instrument %q", instrument), func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		return sc.record(sc.REST.GetTickers(ctx, instrument))
	})
}

func requestInsurance(instrument string, count int) Step {
	phrase := fmt.Sprintf("I request insurance fund data for instrument %q with count %d", instrument, count)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		return sc.record(sc.REST.GetInsurance(ctx, instrument, count))
	})
}

func requestValuations(valuationType, instrument string, count int) Step {
	phrase := fmt.Sprintf("I request %q valuations for instrument %q with count %d", valuationType, instrument, count)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		sc.Instrument = instrument
		return sc.record(sc.REST.GetValuations(ctx, instrument, valuationType, count))
	})
}

func requestExpiredSettlement(instrumentType string, page int) Step {
	phrase := fmt.Sprintf("I request expired settlement prices with instrument_type %q and page %d", instrumentType, page)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		return sc.record(sc.REST.GetExpiredSettlementPrice(ctx, instrumentType, page))
	})
}

func requestRiskParameters() Step {
	return when("I send a GET request to the risk parameters endpoint", func(ctx context.Context, sc *Context) error {
		return sc.record(sc.REST.GetRiskParameters(ctx))
	})
}

func requestAnnouncements(category, productType string) Step {
	phrase := fmt.Sprintf("I send a GET request with category %q and product_type %q", category, productType)
	return when(phrase, func(ctx context.Context, sc *Context) error {
		return sc.record(sc.REST.GetAnnouncements(ctx, category, productType))
	})
}

func statusIs(want ...int) Step {
	phrase := fmt.Sprintf("the response status should be %d", want[0])
	for _, w := range want[1:] {
		phrase += fmt.Sprintf(" or %d", w)
	}
	return then(phrase, func(_ context.Context, sc *Context) error {
		body, err := sc.body()
		if err != nil {
			return err
		}
		if !slices.Contains(want, sc.Response.StatusCode) {
			return fmt.Errorf("status %d, want %v: %s", sc.Response.StatusCode, want, truncate(body, 200))
		}
		return nil
	})
}

func responseCodeZero() Step {
	return then("the response code should be 0", func(_ context.Context, sc *Context) error {
		if _, err := sc.body(); err != nil {
			return err
		}
		if sc.Envelope == nil {
			return errors.New("response body is not a JSON envelope")
		}
		if sc.Envelope.Code != 0 {
			return fmt.Errorf("code %d (%s), want 0", sc.Envelope.Code, sc.Envelope.Message)
		}
		return nil
	})
}

func methodIs(want string) Step {
	return then(fmt.Sprintf("the response method should be %q", want), func(_ context.Context, sc *Context) error {
		body, err := sc.body()
		if err != nil {
			return err
		}
		return validate.Method(body, want)
	})
}

func receivedWithin(limit time.Duration) Step {
	return then(fmt.Sprintf("the response should be received within %s", limit), func(_ context.Context, sc *Context) error {
		if _, err := sc.body(); err != nil {
			return err
		}
		if sc.Elapsed > limit {
			return fmt.Errorf("response took %s, want at most %s", sc.Elapsed, limit)
		}
		return nil
	})
}

// bodyCheck wraps a validator that needs a 200 response.
func bodyCheck(phrase string, check func(body []byte) error) Step {
	return then(phrase, func(_ context.Context, sc *Context) error {
		body, err := sc.requireOK()
		if err != nil {
			return err
		}
		return check(body)
	})
}

func rejected() Step {
	return then("the request should be rejected or return no data", func(_ context.Context, sc *Context) error {
		body, err := sc.body()
		if err != nil {
			return err
		}
		return validate.Rejected(sc.Response.StatusCode, body)
	})
}

// candleCheck runs check over result.data of a candlestick response.
func candleCheck(phrase string, check func(sc *Context, candles []json.RawMessage) error) Step {
	return bodyCheckCtx(phrase, func(sc *Context, body []byte) error {
		candles, err := validate.CandleData(body)
		if err != nil {
			return err
		}
		return check(sc, candles)
	})
}

func bodyCheckCtx(phrase string, check func(sc *Context, body []byte) error) Step {
	return then(phrase, func(_ context.Context, sc *Context) error {
		body, err := sc.requireOK()
		if err != nil {
			return err
		}
		return check(sc, body)
	})
}

func validCandlesticks() Step {
	return bodyCheck("the response should contain valid candlestick data", validate.CandlestickResponse)
}

func candleCountAtMost(n int) Step {
	return candleCheck(fmt.Sprintf("the number of candlesticks should be %d or less", n),
		func(_ *Context, candles []json.RawMessage) error { return validate.CandleCountAtMost(candles, n) })
}

func candlesWithinRange() Step {
	return candleCheck("all candlesticks should be within the specified time range",
		func(sc *Context, candles []json.RawMessage) error {
			if sc.RangeFrom == 0 && sc.RangeTo == 0 {
				return errors.New("no time range was requested")
			}
			return validate.CandlesWithinRange(candles, sc.RangeFrom, sc.RangeTo)
		})
}

func candlesOHLC() Step {
	return candleCheck("each candlestick should have valid OHLC relationships",
		func(_ *Context, candles []json.RawMessage) error { return validate.CandlesIntegrity(candles) })
}

func candlesChronological() Step {
	return candleCheck("candlesticks should be in chronological order",
		func(_ *Context, candles []json.RawMessage) error { return validate.CandlesChronological(candles) })
}

func candleVolumes() Step {
	return candleCheck("all volumes should be non-negative",
		func(_ *Context, candles []json.RawMessage) error { return validate.NonNegativeVolumes(candles) })
}

func candleHeader(phrase string, field string, want string) Step {
	return then(phrase, func(_ context.Context, sc *Context) error {
		if _, err := sc.requireOK(); err != nil {
			return err
		}
		var result marketdata.CandlestickResult
		if err := sc.Response.DecodeResult(&result); err != nil {
			return err
		}
		got := result.InstrumentName
		if field == "interval" {
			got = result.Interval
		}
		if got != want {
			return fmt.Errorf("result.%s %q, want %q", field, got, want)
		}
		return nil
	})
}

func instrumentNameIs(want string) Step {
	return candleHeader(fmt.Sprintf("the instrument name should be %q", want), "instrument_name", want)
}

func timeframeIs(want string) Step {
	return candleHeader(fmt.Sprintf("the timeframe should be %q", want), "interval", want)
}

// excessiveCountHandled accepts either outcome the exchange documents for a
// count above the maximum: a rejection or a response clamped to it.
func excessiveCountHandled() Step {
	phrase := fmt.Sprintf("the request should be rejected or return %d candlesticks or less", marketdata.MaxCandlestickCount)
	return then(phrase, func(_ context.Context, sc *Context) error {
		body, err := sc.body()
		if err != nil {
			return err
		}
		if validate.Rejected(sc.Response.StatusCode, body) == nil {
			return nil
		}
		candles, err := validate.CandleData(body)
		if err != nil {
			return err
		}
		return validate.CandleCountAtMost(candles, marketdata.MaxCandlestickCount)
	})
}

func restBookValid() Step {
	return bodyCheckCtx("each bid and ask entry should have 3 valid fields: price, quantity, orders",
		func(sc *Context, body []byte) error { return validate.RESTBook(body, sc.Instrument) })
}

// spreadNonNegative requires the best ask to be at or above the best bid.
func spreadNonNegative() Step {
	return then("the best ask should not be below the best bid", func(_ context.Context, sc *Context) error {
		if _, err := sc.requireOK(); err != nil {
			return err
		}
		var result struct {
			Data []stream.BookData `json:"data"`
		}
		if err := sc.Response.DecodeResult(&result); err != nil {
			return err
		}
		if len(result.Data) == 0 {
			return nil
		}
		book := result.Data[0]
		stats, err := validate.Spread(book.Bids, book.Asks)
		if err != nil {
			return err
		}
		if stats.Spread.LessThan(decimal.Zero) {
			return fmt.Errorf("crossed book: best bid %s > best ask %s", stats.BestBid, stats.BestAsk)
		}
		sc.Logger.Debug("top of book",
			zap.String("bid", stats.BestBid.String()),
			zap.String("ask", stats.BestAsk.String()),
			zap.String("spread_pct", stats.SpreadPercent.StringFixed(4)))
		return nil
	})
}
