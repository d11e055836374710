package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const candleBody = `{
	"id": 1, "method": "public/get-candlestick", "code": 0,
	"result": {
		"instrument_name": "BTCUSD-PERP", "interval": "1m",
		"data": [
			{"o":"100.5","h":"101","l":"99.5","c":"100","v":"12.3","t":1700000000000},
			{"o":"100","h":"100.2","l":"99","c":"99.1","v":"0","t":1700000060000},
			{"o":99.1,"h":99.9,"l":98.8,"c":99.5,"v":3,"t":1700000120000}
		]
	}
}`

// go test -v --run TestCandlestickResponse
func TestCandlestickResponse(t *testing.T) {
	require.NoError(t, CandlestickResponse([]byte(candleBody)))

	tests := []struct {
		name string
		body string
		want string
	}{
		{"no result", `{"code":0}`, `missing "result"`},
		{"no data", `{"result":{"instrument_name":"X","interval":"1m"}}`, `missing "data"`},
		{"no instrument", `{"result":{"data":[],"interval":"1m"}}`, `missing "instrument_name"`},
		{"no interval", `{"result":{"data":[],"instrument_name":"X"}}`, `missing "interval"`},
		{"data not list", `{"result":{"data":{},"instrument_name":"X","interval":"1m"}}`, "not a list"},
		{"not json", `<html>`, "not an object"},
		{
			"bad candle fails response",
			`{"result":{"instrument_name":"X","interval":"1m","data":[
				{"o":"1","h":"2","l":"0.5","c":"1.5","v":"1","t":1},
				{"o":"3","h":"2","l":"0.5","c":"1.5","v":"1","t":2}]}}`,
			"candle[1]: candle t=2: high 2 < open 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CandlestickResponse([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// go test -v --run TestCandle
func TestCandle(t *testing.T) {
	tests := []struct {
		name   string
		candle string
		want   string
	}{
		{"valid", `{"o":"10","h":"12","l":"9","c":"11","v":"5","t":1}`, ""},
		{"flat", `{"o":"10","h":"10","l":"10","c":"10","v":"0","t":1}`, ""},
		{"missing close", `{"o":"10","h":"12","l":"9","v":"5","t":1}`, `missing "c"`},
		{"high below close", `{"o":"10","h":"11","l":"9","c":"11.5","v":"5","t":1}`, "high 11 < close 11.5"},
		{"high below low", `{"o":"10","h":"8","l":"9","c":"8","v":"5","t":1}`, "high 8 < open 10"},
		{"low above open", `{"o":"10","h":"12","l":"10.5","c":"11","v":"5","t":1}`, "low 10.5 > open 10"},
		{"low above close", `{"o":"11","h":"12","l":"10.5","c":"10","v":"5","t":1}`, "low 10.5 > close 10"},
		{"negative volume", `{"o":"10","h":"12","l":"9","c":"11","v":"-1","t":1}`, "volume -1 < 0"},
		{"non numeric", `{"o":"abc","h":"12","l":"9","c":"11","v":"1","t":1}`, "open: not a number"},
		{"string timestamp", `{"o":"10","h":"12","l":"9","c":"11","v":"1","t":"1"}`, "candle t: not an integer"},
		{"exact decimals", `{"o":"0.1","h":"0.30000000000000001","l":"0.1","c":"0.3","v":"1","t":1}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Candle(json.RawMessage(tt.candle))
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

// go test -v --run TestCandleSequences
func TestCandleSequences(t *testing.T) {
	data, err := CandleData([]byte(candleBody))
	require.NoError(t, err)
	require.Len(t, data, 3)

	assert.NoError(t, CandlesIntegrity(data))
	assert.NoError(t, CandlesChronological(data))
	assert.NoError(t, CandlesWithinRange(data, 1700000000000, 1700000120000), "range is inclusive")
	assert.NoError(t, CandleCountAtMost(data, 3))
	assert.NoError(t, NonNegativeVolumes(data))

	assert.ErrorContains(t, CandlesWithinRange(data, 1700000000001, 1700000120000), "candle[0] t=1700000000000 outside range")
	assert.ErrorContains(t, CandlesWithinRange(data, 1700000000000, 1700000119999), "candle[2]")
	assert.ErrorContains(t, CandleCountAtMost(data, 2), "got 3 candlesticks, want 2 or less")

	dup := rawList(`{"t":5}`, `{"t":5}`)
	assert.ErrorContains(t, CandlesChronological(dup), "candle[1] t=5 not after candle[0] t=5")

	neg := rawList(`{"v":"1"}`, `{"v":"-0.01"}`)
	assert.ErrorContains(t, NonNegativeVolumes(neg), "negative volume at candle[1]")

	empty := []json.RawMessage{}
	assert.NoError(t, CandlesIntegrity(empty))
	assert.NoError(t, CandlesChronological(empty))
	assert.NoError(t, CandlesWithinRange(empty, 0, 0))
}
