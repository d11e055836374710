package validate

import (
	"encoding/json"
	"testing"

	"marketconformance/internal/stream"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookMessage(t *testing.T, frame string) stream.Message {
	t.Helper()
	msg, err := stream.Decode([]byte(frame))
	require.NoError(t, err)
	return msg
}

const goodBook = `{"id":-1,"method":"public/book","params":{"channel":"book.BTCUSD-PERP.10","subscription":"book.BTCUSD-PERP.10",
	"data":[{"instrument_name":"BTCUSD-PERP","t":1700000000000,
		"bids":[["50000.5","1.2","3"],["50000.5","0.1","1"],["49999","2","2"]],
		"asks":[["50001","0.5","1"],["50002.25","1","4"]]}]}}`

// go test -v --run TestBookValidators
func TestBookValidators(t *testing.T) {
	msg := bookMessage(t, goodBook)

	assert.NoError(t, BookStructure(msg))
	assert.NoError(t, BookOrdering(msg), "equal prices are allowed")
	assert.NoError(t, BookPositive(msg))
	assert.NoError(t, BookDepthAtMost(msg, 10))
	assert.NoError(t, BookInstrument(msg, "BTCUSD-PERP"))

	assert.ErrorContains(t, BookDepthAtMost(msg, 2), "bids depth 3 exceeds limit 2")
	assert.ErrorContains(t, BookInstrument(msg, "ETHUSD-PERP"), `instrument_name "BTCUSD-PERP", want "ETHUSD-PERP"`)
}

// go test -v --run TestBookEmptyData
func TestBookEmptyData(t *testing.T) {
	msg := bookMessage(t, `{"method":"public/book","params":{"channel":"book.BTCUSD-PERP.10","data":[]}}`)

	assert.NoError(t, BookStructure(msg))
	assert.NoError(t, BookOrdering(msg))
	assert.NoError(t, BookPositive(msg))
	assert.NoError(t, BookDepthAtMost(msg, 0))
	assert.Error(t, BookInstrument(msg, "BTCUSD-PERP"))
}

// go test -v --run TestBookStructureFailures
func TestBookStructureFailures(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"no params", `{"method":"public/book"}`, `missing "params"`},
		{"no channel", `{"method":"public/book","params":{"data":[]}}`, `missing "channel"`},
		{"no data", `{"method":"public/book","params":{"channel":"c"}}`, `missing "data"`},
		{"data not list", `{"method":"public/book","params":{"channel":"c","data":{}}}`, "not a list"},
		{"no asks", `{"method":"public/book","params":{"channel":"c","data":[{"bids":[],"instrument_name":"X","t":1}]}}`, `missing "asks"`},
		{"no timestamp", `{"method":"public/book","params":{"channel":"c","data":[{"bids":[],"asks":[],"instrument_name":"X"}]}}`, `missing "t"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BookStructure(bookMessage(t, tt.frame))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// go test -v --run TestBookOrderingAndPositivity
func TestBookOrderingAndPositivity(t *testing.T) {
	frame := func(bids, asks string) stream.Message {
		return bookMessage(t, `{"method":"public/book","params":{"channel":"c","data":[{"instrument_name":"X","t":1,"bids":`+bids+`,"asks":`+asks+`}]}}`)
	}

	assert.ErrorContains(t, BookOrdering(frame(`[["1","1","1"],["2","1","1"]]`, `[]`)), "bids not descending: bids[1] 2 > bids[0] 1")
	assert.ErrorContains(t, BookOrdering(frame(`[]`, `[["2","1","1"],["1","1","1"]]`)), "asks not ascending: asks[1] 1 < asks[0] 2")
	assert.ErrorContains(t, BookOrdering(frame(`[["x","1","1"]]`, `[]`)), "bids[0]: price: not a number")

	assert.ErrorContains(t, BookPositive(frame(`[["0","1","1"]]`, `[]`)), "bids[0] price 0 <= 0")
	assert.ErrorContains(t, BookPositive(frame(`[]`, `[["1","-2","1"]]`)), "asks[0] quantity -2 <= 0")
	assert.ErrorContains(t, BookPositive(frame(`[]`, `[["1","abc","1"]]`)), "asks[0] quantity: not a number")
}

// go test -v --run TestLevel
func TestLevel(t *testing.T) {
	level := func(s string) stream.Level {
		var l stream.Level
		require.NoError(t, json.Unmarshal([]byte(s), &l))
		return l
	}

	assert.NoError(t, Level(level(`["100.5","0.01","2"]`)))
	assert.ErrorContains(t, Level(level(`["100.5","0.01"]`)), "level has 2 fields, want 3")
	assert.ErrorContains(t, Level(level(`[100.5,"0.01","2"]`)), "level price is not a string")
	assert.ErrorContains(t, Level(level(`["100.5","0.01","1.5"]`)), `level orders "1.5" is not an integer`)
	assert.ErrorContains(t, Level(level(`["100.5","0.01","0"]`)), "level orders 0 <= 0")
	assert.ErrorContains(t, Level(level(`["0","0.01","1"]`)), "level price 0 <= 0")
	assert.ErrorContains(t, Level(level(`["1","nan?","1"]`)), "level quantity: not a number")
}

// go test -v --run TestRESTBook
func TestRESTBook(t *testing.T) {
	body := `{"id":1,"method":"public/get-book","code":0,"result":{"instrument_name":"BTCUSD-PERP","depth":10,
		"data":[{"bids":[["50000","1","1"],["49990","2","3"]],"asks":[["50010","1","1"]]}]}}`
	require.NoError(t, RESTBook([]byte(body), "BTCUSD-PERP"))
	assert.ErrorContains(t, RESTBook([]byte(body), "ETHUSD-PERP"), "result.instrument_name")

	unordered := `{"result":{"instrument_name":"X","data":[{"bids":[["1","1","1"],["2","1","1"]],"asks":[]}]}}`
	assert.ErrorContains(t, RESTBook([]byte(unordered), "X"), "bids not descending")

	badLevel := `{"result":{"instrument_name":"X","data":[{"bids":[],"asks":[["1","1"]]}]}}`
	assert.ErrorContains(t, RESTBook([]byte(badLevel), "X"), "asks[0]: level has 2 fields")

	empty := `{"result":{"instrument_name":"X","data":[]}}`
	assert.NoError(t, RESTBook([]byte(empty), "X"))
}

// go test -v --run TestSpreadAndVolume
func TestSpreadAndVolume(t *testing.T) {
	msg := bookMessage(t, goodBook)
	book, err := msg.Book()
	require.NoError(t, err)
	sides := book.Data[0]

	s, err := Spread(sides.Bids, sides.Asks)
	require.NoError(t, err)
	assert.True(t, s.BestBid.Equal(decimal.RequireFromString("50000.5")))
	assert.True(t, s.BestAsk.Equal(decimal.RequireFromString("50001")))
	assert.True(t, s.Spread.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.MidPrice.Equal(decimal.RequireFromString("50000.75")))
	assert.True(t, s.SpreadPercent.IsPositive())

	zero, err := Spread(nil, sides.Asks)
	require.NoError(t, err)
	assert.True(t, zero.Spread.IsZero())

	total, err := TotalVolume(sides.Bids)
	require.NoError(t, err)
	assert.Equal(t, "3.3", total.String())
}
