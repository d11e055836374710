package validate

import (
	"encoding/json"
	"fmt"
)

// CandleData returns result.data of a public/get-candlestick body.
func CandleData(body []byte) ([]json.RawMessage, error) {
	_, data, err := resultData(body)
	return data, err
}

// CandlestickResponse checks the result envelope and every candle in it. One
// bad candle fails the whole response.
func CandlestickResponse(body []byte) error {
	result, data, err := resultData(body)
	if err != nil {
		return err
	}
	if err := requireFields(result, "result", "instrument_name", "interval"); err != nil {
		return err
	}
	return CandlesIntegrity(data)
}

// Candle checks one {o,h,l,c,v,t} record: high is the largest price, low the
// smallest, and volume is not negative.
func Candle(raw json.RawMessage) error {
	obj, err := decodeObject(raw, "candle")
	if err != nil {
		return err
	}
	if err := requireFields(obj, "candle", "o", "h", "l", "c", "v", "t"); err != nil {
		return err
	}

	t, err := asInt(obj["t"])
	if err != nil {
		return fmt.Errorf("candle t: %w", err)
	}

	open, err := number(obj["o"])
	if err != nil {
		return fmt.Errorf("candle t=%d open: %w", t, err)
	}
	high, err := number(obj["h"])
	if err != nil {
		return fmt.Errorf("candle t=%d high: %w", t, err)
	}
	low, err := number(obj["l"])
	if err != nil {
		return fmt.Errorf("candle t=%d low: %w", t, err)
	}
	closePrice, err := number(obj["c"])
	if err != nil {
		return fmt.Errorf("candle t=%d close: %w", t, err)
	}
	volume, err := number(obj["v"])
	if err != nil {
		return fmt.Errorf("candle t=%d volume: %w", t, err)
	}

	switch {
	case high.LessThan(open):
		return fmt.Errorf("candle t=%d: high %s < open %s", t, high, open)
	case high.LessThan(closePrice):
		return fmt.Errorf("candle t=%d: high %s < close %s", t, high, closePrice)
	case high.LessThan(low):
		return fmt.Errorf("candle t=%d: high %s < low %s", t, high, low)
	case low.GreaterThan(open):
		return fmt.Errorf("candle t=%d: low %s > open %s", t, low, open)
	case low.GreaterThan(closePrice):
		return fmt.Errorf("candle t=%d: low %s > close %s", t, low, closePrice)
	case volume.IsNegative():
		return fmt.Errorf("candle t=%d: volume %s < 0", t, volume)
	}
	return nil
}

// CandlesIntegrity applies Candle to every element.
func CandlesIntegrity(candles []json.RawMessage) error {
	for i, c := range candles {
		if err := Candle(c); err != nil {
			return fmt.Errorf("candle[%d]: %w", i, err)
		}
	}
	return nil
}

func candleTimes(candles []json.RawMessage) ([]int64, error) {
	ts := make([]int64, len(candles))
	for i, c := range candles {
		obj, err := decodeObject(c, fmt.Sprintf("candle[%d]", i))
		if err != nil {
			return nil, err
		}
		raw, ok := obj["t"]
		if !ok {
			return nil, fmt.Errorf("candle[%d]: missing %q", i, "t")
		}
		if ts[i], err = asInt(raw); err != nil {
			return nil, fmt.Errorf("candle[%d] t: %w", i, err)
		}
	}
	return ts, nil
}

// CandlesChronological requires strictly increasing timestamps.
func CandlesChronological(candles []json.RawMessage) error {
	ts, err := candleTimes(candles)
	if err != nil {
		return err
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			return fmt.Errorf("candle[%d] t=%d not after candle[%d] t=%d", i, ts[i], i-1, ts[i-1])
		}
	}
	return nil
}

// CandlesWithinRange requires every timestamp in [start, end].
func CandlesWithinRange(candles []json.RawMessage, start, end int64) error {
	ts, err := candleTimes(candles)
	if err != nil {
		return err
	}
	for i, t := range ts {
		if t < start || t > end {
			return fmt.Errorf("candle[%d] t=%d outside range [%d, %d]", i, t, start, end)
		}
	}
	return nil
}

func CandleCountAtMost(candles []json.RawMessage, n int) error {
	if len(candles) > n {
		return fmt.Errorf("got %d candlesticks, want %d or less", len(candles), n)
	}
	return nil
}

func NonNegativeVolumes(candles []json.RawMessage) error {
	for i, c := range candles {
		obj, err := decodeObject(c, fmt.Sprintf("candle[%d]", i))
		if err != nil {
			return err
		}
		raw, ok := obj["v"]
		if !ok {
			return fmt.Errorf("candle[%d]: missing %q", i, "v")
		}
		v, err := number(raw)
		if err != nil {
			return fmt.Errorf("candle[%d] volume: %w", i, err)
		}
		if v.IsNegative() {
			return fmt.Errorf("negative volume at candle[%d]: %s", i, v)
		}
	}
	return nil
}
