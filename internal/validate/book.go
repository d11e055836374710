package validate

import (
	"fmt"

	"marketconformance/internal/stream"

	"github.com/shopspring/decimal"
)

// BookStructure checks a public/book push for method, params.channel and
// params.data, and the first data element for bids, asks, instrument_name
// and t. Empty data is valid.
func BookStructure(msg stream.Message) error {
	fields, err := msg.Fields()
	if err != nil {
		return err
	}
	if err := requireFields(fields, "message", "method", "params"); err != nil {
		return err
	}
	params, err := decodeObject(fields["params"], "params")
	if err != nil {
		return err
	}
	if err := requireFields(params, "params", "channel", "data"); err != nil {
		return err
	}
	data, err := decodeArray(params["data"], "params.data")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	first, err := decodeObject(data[0], "params.data[0]")
	if err != nil {
		return err
	}
	return requireFields(first, "params.data[0]", "bids", "asks", "instrument_name", "t")
}

// firstBook returns params.data[0], or nil when data is empty.
func firstBook(msg stream.Message) (*stream.BookData, error) {
	p, err := msg.Book()
	if err != nil {
		return nil, err
	}
	if len(p.Data) == 0 {
		return nil, nil
	}
	return &p.Data[0], nil
}

// BookOrdering requires bids non-increasing and asks non-decreasing by price.
func BookOrdering(msg stream.Message) error {
	book, err := firstBook(msg)
	if err != nil || book == nil {
		return err
	}
	return sidesOrdered(book.Bids, book.Asks)
}

// BookPositive requires every bid and ask price and quantity to be > 0.
func BookPositive(msg stream.Message) error {
	book, err := firstBook(msg)
	if err != nil || book == nil {
		return err
	}
	if err := positive("bids", book.Bids); err != nil {
		return err
	}
	return positive("asks", book.Asks)
}

// BookDepthAtMost requires at most n levels per side.
func BookDepthAtMost(msg stream.Message, n int) error {
	book, err := firstBook(msg)
	if err != nil || book == nil {
		return err
	}
	if len(book.Bids) > n {
		return fmt.Errorf("bids depth %d exceeds limit %d", len(book.Bids), n)
	}
	if len(book.Asks) > n {
		return fmt.Errorf("asks depth %d exceeds limit %d", len(book.Asks), n)
	}
	return nil
}

// BookInstrument requires params.data[0].instrument_name to equal name.
func BookInstrument(msg stream.Message, name string) error {
	book, err := firstBook(msg)
	if err != nil {
		return err
	}
	if book == nil {
		return fmt.Errorf("book message carries no data for %s", name)
	}
	if book.InstrumentName != name {
		return fmt.Errorf("instrument_name %q, want %q", book.InstrumentName, name)
	}
	return nil
}

// Level checks one [price, quantity, order-count] triple: three strings,
// positive price and quantity, and a positive integer count.
func Level(level stream.Level) error {
	if len(level) != 3 {
		return fmt.Errorf("level has %d fields, want 3", len(level))
	}
	names := [3]string{"price", "quantity", "orders"}
	for i, raw := range level {
		if !isString(raw) {
			return fmt.Errorf("level %s is not a string: %s", names[i], raw)
		}
	}

	price, err := number(level[0])
	if err != nil {
		return fmt.Errorf("level price: %w", err)
	}
	qty, err := number(level[1])
	if err != nil {
		return fmt.Errorf("level quantity: %w", err)
	}
	s, _ := asString(level[2])
	count, err := decimal.NewFromString(s)
	if err != nil || !count.IsInteger() {
		return fmt.Errorf("level orders %q is not an integer", s)
	}

	switch {
	case !price.IsPositive():
		return fmt.Errorf("level price %s <= 0", price)
	case !qty.IsPositive():
		return fmt.Errorf("level quantity %s <= 0", qty)
	case !count.IsPositive():
		return fmt.Errorf("level orders %s <= 0", count)
	}
	return nil
}

// RESTBook checks a public/get-book body: instrument, level format, side
// ordering and positivity. An empty data list is valid.
func RESTBook(body []byte, instrument string) error {
	result, data, err := resultData(body)
	if err != nil {
		return err
	}
	if instrument != "" {
		if err := requireFields(result, "result", "instrument_name"); err != nil {
			return err
		}
		got, err := asString(result["instrument_name"])
		if err != nil {
			return fmt.Errorf("result.instrument_name: %w", err)
		}
		if got != instrument {
			return fmt.Errorf("result.instrument_name %q, want %q", got, instrument)
		}
	}
	if len(data) == 0 {
		return nil
	}

	var book stream.BookData
	if err := codec.Unmarshal(data[0], &book); err != nil {
		return fmt.Errorf("decode result.data[0]: %w", err)
	}
	for i, l := range book.Bids {
		if err := Level(l); err != nil {
			return fmt.Errorf("bids[%d]: %w", i, err)
		}
	}
	for i, l := range book.Asks {
		if err := Level(l); err != nil {
			return fmt.Errorf("asks[%d]: %w", i, err)
		}
	}
	return sidesOrdered(book.Bids, book.Asks)
}

func sidesOrdered(bids, asks []stream.Level) error {
	prev := decimal.Zero
	for i, l := range bids {
		p, err := levelPrice(l)
		if err != nil {
			return fmt.Errorf("bids[%d]: %w", i, err)
		}
		if i > 0 && p.GreaterThan(prev) {
			return fmt.Errorf("bids not descending: bids[%d] %s > bids[%d] %s", i, p, i-1, prev)
		}
		prev = p
	}
	for i, l := range asks {
		p, err := levelPrice(l)
		if err != nil {
			return fmt.Errorf("asks[%d]: %w", i, err)
		}
		if i > 0 && p.LessThan(prev) {
			return fmt.Errorf("asks not ascending: asks[%d] %s < asks[%d] %s", i, p, i-1, prev)
		}
		prev = p
	}
	return nil
}

func positive(side string, levels []stream.Level) error {
	for i, l := range levels {
		if len(l) < 2 {
			return fmt.Errorf("%s[%d] has %d fields, want price and quantity", side, i, len(l))
		}
		price, err := number(l[0])
		if err != nil {
			return fmt.Errorf("%s[%d] price: %w", side, i, err)
		}
		qty, err := number(l[1])
		if err != nil {
			return fmt.Errorf("%s[%d] quantity: %w", side, i, err)
		}
		if !price.IsPositive() {
			return fmt.Errorf("%s[%d] price %s <= 0", side, i, price)
		}
		if !qty.IsPositive() {
			return fmt.Errorf("%s[%d] quantity %s <= 0", side, i, qty)
		}
	}
	return nil
}

func levelPrice(l stream.Level) (decimal.Decimal, error) {
	if len(l) == 0 {
		return decimal.Zero, fmt.Errorf("empty level")
	}
	p, err := number(l[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("price: %w", err)
	}
	return p, nil
}

// SpreadStats describes the top of a book.
type SpreadStats struct {
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	Spread        decimal.Decimal
	MidPrice      decimal.Decimal
	SpreadPercent decimal.Decimal
}

// Spread computes top-of-book metrics. Either side empty yields zero stats.
func Spread(bids, asks []stream.Level) (SpreadStats, error) {
	if len(bids) == 0 || len(asks) == 0 {
		return SpreadStats{}, nil
	}
	bid, err := levelPrice(bids[0])
	if err != nil {
		return SpreadStats{}, fmt.Errorf("best bid: %w", err)
	}
	ask, err := levelPrice(asks[0])
	if err != nil {
		return SpreadStats{}, fmt.Errorf("best ask: %w", err)
	}

	s := SpreadStats{
		BestBid:  bid,
		BestAsk:  ask,
		Spread:   ask.Sub(bid),
		MidPrice: bid.Add(ask).Div(decimal.NewFromInt(2)),
	}
	if !s.MidPrice.IsZero() {
		s.SpreadPercent = s.Spread.Div(s.MidPrice).Mul(decimal.NewFromInt(100))
	}
	return s, nil
}

// TotalVolume sums the quantities of levels.
func TotalVolume(levels []stream.Level) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, l := range levels {
		if len(l) < 2 {
			return decimal.Zero, fmt.Errorf("level[%d] has no quantity", i)
		}
		q, err := number(l[1])
		if err != nil {
			return decimal.Zero, fmt.Errorf("level[%d] quantity: %w", i, err)
		}
		total = total.Add(q)
	}
	return total, nil
}
