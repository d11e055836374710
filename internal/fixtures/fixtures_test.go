package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestLookup
func TestLookup(t *testing.T) {
	c, err := Lookup(NegativeCandlestick, "invalid_timestamp")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD-PERP", c.InstrumentOr("X"))
	assert.Equal(t, "1h", c.TimeframeOr("1m"))
	require.NotNil(t, c.StartTS)
	assert.Equal(t, int64(-1), *c.StartTS)
	assert.Nil(t, c.Count, "count is not part of this case")
	assert.Nil(t, c.EndTS)

	// the same name exists under two kinds
	neg, err := Lookup(NegativeSubscription, "invalid_instrument")
	require.NoError(t, err)
	assert.Equal(t, NegativeSubscription, neg.Kind)
	assert.Equal(t, 10, neg.DepthOr(0))

	_, err = Lookup(PositiveCandlestick, "nope")
	assert.ErrorIs(t, err, ErrUnknownCase)
	assert.Contains(t, err.Error(), "positive-candlestick")
}

// go test -v --run TestAll
func TestAll(t *testing.T) {
	for _, kind := range []Kind{PositiveCandlestick, NegativeCandlestick, PositiveSubscription, BookUpdateSubscription, NegativeSubscription} {
		all := All(kind)
		require.NotEmpty(t, all, kind.String())

		seen := map[string]bool{}
		for _, c := range all {
			assert.Equal(t, kind, c.Kind)
			assert.False(t, seen[c.Name], "duplicate %s case %q", kind, c.Name)
			seen[c.Name] = true
		}
	}

	for _, c := range All(BookUpdateSubscription) {
		require.NotNil(t, c.SubscriptionType, c.Name)
		require.NotNil(t, c.UpdateFrequency, c.Name)
		assert.Equal(t, "book.BTCUSD-PERP.10", c.ChannelOr(""))
	}

	for _, c := range All(PositiveSubscription) {
		assert.True(t, IsValidDepth(c.DepthOr(0)), c.Name)
	}

	excessive, err := Lookup(NegativeCandlestick, "excessive_count")
	require.NoError(t, err)
	assert.Equal(t, ExcessiveCount, *excessive.Count)
}

// go test -v --run TestValidSets
func TestValidSets(t *testing.T) {
	assert.Equal(t, []string{"BTCUSD-PERP"}, ValidInstruments())
	assert.Equal(t, []string{"1m", "5m", "15m"}, ValidTimeframes())
	assert.Equal(t, []int{10, 50}, ValidDepths())
	assert.True(t, IsValidDepth(DefaultDepth))
	assert.False(t, IsValidDepth(999))
	assert.Equal(t, "kind(42)", Kind(42).String())
}
