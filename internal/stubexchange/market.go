package stubexchange

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// market produces deterministic market data: the same instrument and
// timestamp always yield the same numbers, so tests can assert on them.
type market struct {
	prices map[string]float64
	now    func() time.Time
}

var defaultPrices = map[string]float64{
	"BTCUSD-PERP": 50000,
	"ETHUSD-PERP": 3000,
	"BTC_USD":     50000,
}

func newMarket(prices map[string]float64, now func() time.Time) *market {
	if len(prices) == 0 {
		prices = defaultPrices
	}
	if now == nil {
		now = time.Now
	}
	return &market{prices: prices, now: now}
}

func (m *market) known(instrument string) bool {
	_, ok := m.prices[instrument]
	return ok
}

func (m *market) instruments() []string {
	names := make([]string, 0, len(m.prices))
	for name := range m.prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *market) nowMs() int64 {
	return m.now().UnixMilli()
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func (m *market) price(instrument string, t int64) float64 {
	base := m.prices[instrument]
	return base * (1 + 0.002*math.Sin(float64(t)/3.6e6))
}

type candle struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
	T int64  `json:"t"`
}

func (m *market) candle(instrument string, t int64, width time.Duration) candle {
	base := m.prices[instrument]
	step := float64(t / width.Milliseconds())
	swing := base * 0.001

	o := base + swing*math.Sin(step/7)
	c := base + swing*math.Sin((step+1)/7)
	h := math.Max(o, c) + swing*(0.1+math.Abs(math.Sin(step)))
	l := math.Min(o, c) - swing*(0.1+math.Abs(math.Cos(step)))
	v := 10 + 5*math.Abs(math.Sin(step/3))

	return candle{O: fixed(o, 2), H: fixed(h, 2), L: fixed(l, 2), C: fixed(c, 2), V: fixed(v, 4), T: t}
}

// candles returns up to count buckets of width, oldest first. With a start
// the buckets begin at the first boundary at or after start; otherwise they
// end at the last boundary at or before end.
func (m *market) candles(instrument string, width time.Duration, count int, start, end *int64) []candle {
	w := width.Milliseconds()
	last := m.nowMs()
	if end != nil {
		last = *end
	}
	last = last / w * w

	first := last - int64(count-1)*w
	if start != nil {
		first = (*start + w - 1) / w * w
		if span := (last-first)/w + 1; span > int64(count) {
			first = last - int64(count-1)*w
		}
	}

	var out []candle
	for t := first; t <= last; t += w {
		out = append(out, m.candle(instrument, t, width))
	}
	return out
}

// book returns depth levels per side around the current price.
func (m *market) book(instrument string, depth int, t int64) (bids, asks [][]string) {
	mid := decimal.NewFromFloat(m.price(instrument, t)).Round(1)
	tick := decimal.RequireFromString("0.5")

	for i := 0; i < depth; i++ {
		off := tick.Mul(decimal.NewFromInt(int64(i + 1)))
		qty := decimal.NewFromFloat(0.1 + 0.05*float64(i)).StringFixed(4)
		orders := strconv.Itoa(i%5 + 1)
		bids = append(bids, []string{mid.Sub(off).StringFixed(1), qty, orders})
		asks = append(asks, []string{mid.Add(off).StringFixed(1), qty, orders})
	}
	return bids, asks
}
