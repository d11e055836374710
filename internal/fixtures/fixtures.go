// Package fixtures holds the hand-authored parameter sets that drive the
// positive and negative scenarios. Each case is a tagged record; a nil field
// means the parameter is not sent at all.
package fixtures

import (
	"errors"
	"fmt"
	"slices"
)

type Kind int

const (
	PositiveCandlestick Kind = iota + 1
	NegativeCandlestick
	PositiveSubscription
	BookUpdateSubscription
	NegativeSubscription
)

func (k Kind) String() string {
	switch k {
	case PositiveCandlestick:
		return "positive-candlestick"
	case NegativeCandlestick:
		return "negative-candlestick"
	case PositiveSubscription:
		return "positive-subscription"
	case BookUpdateSubscription:
		return "book-update-subscription"
	case NegativeSubscription:
		return "negative-subscription"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var ErrUnknownCase = errors.New("unknown test case")

// Case is one fixture. Which fields are set depends on Kind.
type Case struct {
	Kind Kind
	Name string

	Instrument *string
	Timeframe  *string
	Count      *int
	StartTS    *int64
	EndTS      *int64

	Depth            *int
	Channel          *string
	SubscriptionType *string
	UpdateFrequency  *int
}

// InstrumentOr returns the instrument, or def when the case leaves it out.
func (c Case) InstrumentOr(def string) string {
	if c.Instrument == nil {
		return def
	}
	return *c.Instrument
}

func (c Case) TimeframeOr(def string) string {
	if c.Timeframe == nil {
		return def
	}
	return *c.Timeframe
}

func (c Case) DepthOr(def int) int {
	if c.Depth == nil {
		return def
	}
	return *c.Depth
}

func (c Case) ChannelOr(def string) string {
	if c.Channel == nil {
		return def
	}
	return *c.Channel
}

func ptr[T any](v T) *T { return &v }

const (
	Instrument = "BTCUSD-PERP"

	// DefaultDepth is the book depth used when a scenario names none.
	DefaultDepth = 10

	// ExcessiveCount is above the documented candlestick maximum of 300.
	ExcessiveCount = 1000
)

var cases = []Case{
	{Kind: PositiveCandlestick, Name: "valid_instrument", Instrument: ptr(Instrument), Timeframe: ptr("1m"), Count: ptr(10)},
	{Kind: PositiveCandlestick, Name: "valid_instrument_5m", Instrument: ptr(Instrument), Timeframe: ptr("5m"), Count: ptr(20)},
	{Kind: PositiveCandlestick, Name: "valid_instrument_15m", Instrument: ptr(Instrument), Timeframe: ptr("15m"), Count: ptr(5)},

	{Kind: NegativeCandlestick, Name: "invalid_instrument", Instrument: ptr("INVALID_PAIR"), Timeframe: ptr("1h"), Count: ptr(10)},
	{Kind: NegativeCandlestick, Name: "invalid_timeframe", Instrument: ptr(Instrument), Timeframe: ptr("invalid"), Count: ptr(10)},
	{Kind: NegativeCandlestick, Name: "excessive_count", Instrument: ptr(Instrument), Timeframe: ptr("1h"), Count: ptr(ExcessiveCount)},
	{Kind: NegativeCandlestick, Name: "negative_count", Instrument: ptr(Instrument), Timeframe: ptr("1h"), Count: ptr(-1)},
	{Kind: NegativeCandlestick, Name: "invalid_timestamp", Instrument: ptr(Instrument), Timeframe: ptr("1h"), StartTS: ptr(int64(-1))},
	{Kind: NegativeCandlestick, Name: "missing_instrument", Instrument: ptr(""), Timeframe: ptr("1h")},

	{Kind: PositiveSubscription, Name: "valid_subscription", Instrument: ptr(Instrument), Depth: ptr(50), Channel: ptr("book.BTCUSD-PERP.50")},
	{Kind: PositiveSubscription, Name: "valid_unsubscription", Instrument: ptr(Instrument), Depth: ptr(10), Channel: ptr("book.BTCUSD-PERP.10")},

	{Kind: BookUpdateSubscription, Name: "valid_subscription_with_book_update_10", Channel: ptr("book.BTCUSD-PERP.10"),
		SubscriptionType: ptr("SNAPSHOT_AND_UPDATE"), UpdateFrequency: ptr(10)},
	{Kind: BookUpdateSubscription, Name: "valid_subscription_with_book_update_500", Channel: ptr("book.BTCUSD-PERP.10"),
		SubscriptionType: ptr("SNAPSHOT_AND_UPDATE"), UpdateFrequency: ptr(500)},

	{Kind: NegativeSubscription, Name: "invalid_instrument", Instrument: ptr("INVALID_PAIR"), Depth: ptr(10)},
	{Kind: NegativeSubscription, Name: "invalid_depth", Instrument: ptr(Instrument), Depth: ptr(999)},
	{Kind: NegativeSubscription, Name: "missing_instrument", Instrument: ptr(""), Depth: ptr(10)},
}

// Lookup finds a case by kind and name.
func Lookup(kind Kind, name string) (Case, error) {
	for _, c := range cases {
		if c.Kind == kind && c.Name == name {
			return c, nil
		}
	}
	return Case{}, fmt.Errorf("%w: %s %q", ErrUnknownCase, kind, name)
}

// All returns the cases of kind in declaration order.
func All(kind Kind) []Case {
	var out []Case
	for _, c := range cases {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func ValidInstruments() []string { return []string{Instrument} }

func ValidTimeframes() []string { return []string{"1m", "5m", "15m"} }

func ValidDepths() []int { return []int{10, 50} }

// IsValidDepth reports whether depth is one the book channel accepts.
func IsValidDepth(depth int) bool {
	return slices.Contains(ValidDepths(), depth)
}
