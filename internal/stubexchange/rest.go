package stubexchange

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketconformance/pkg/marketdata"

	"go.uber.org/zap"
)

// Error codes returned in the envelope of rejected requests.
const (
	codeMethodNotFound  = 40002
	codeInvalidRequest  = 40003
	codeInvalidArgument = 40004
	codeTooManyRequests = 42901
)

type envelope struct {
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func (s *Server) reply(w http.ResponseWriter, status int, env envelope) {
	body, err := codec.Marshal(env)
	if err != nil {
		s.logger.Error("failed to encode response", zap.String("method", env.Method), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) ok(w http.ResponseWriter, method string, result any) {
	s.reply(w, http.StatusOK, envelope{ID: -1, Method: method, Code: 0, Result: result})
}

func (s *Server) reject(w http.ResponseWriter, method string, code int, format string, args ...any) {
	s.reply(w, http.StatusBadRequest, envelope{ID: -1, Method: method, Code: code, Message: fmt.Sprintf(format, args...)})
}

// intParam parses an optional integer parameter. present is false when the
// parameter is absent; err is set when it is present but not an integer.
func intParam(q url.Values, name string) (v int64, present bool, err error) {
	s, ok := q[name]
	if !ok || len(s) == 0 {
		return 0, false, nil
	}
	v, err = strconv.ParseInt(strings.TrimSpace(s[0]), 10, 64)
	return v, true, err
}

func (s *Server) handleCandlestick(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointCandlestick
	q := r.URL.Query()

	instrument := q.Get("instrument_name")
	if !s.market.known(instrument) {
		s.reject(w, method, codeInvalidArgument, "Invalid instrument_name: %q", instrument)
		return
	}
	tf, err := marketdata.ParseTimeframe(q.Get("timeframe"))
	if err != nil {
		s.reject(w, method, codeInvalidArgument, "Invalid timeframe: %q", q.Get("timeframe"))
		return
	}

	count := int64(25)
	if v, present, err := intParam(q, "count"); present {
		if err != nil || v <= 0 {
			s.reject(w, method, codeInvalidArgument, "Invalid count: %q", q.Get("count"))
			return
		}
		count = min(v, marketdata.MaxCandlestickCount)
	}

	var start, end *int64
	for _, p := range []struct {
		name string
		dst  **int64
	}{{"start_ts", &start}, {"end_ts", &end}} {
		v, present, err := intParam(q, p.name)
		if !present {
			continue
		}
		if err != nil || v < 0 {
			s.reject(w, method, codeInvalidArgument, "Invalid %s: %q", p.name, q.Get(p.name))
			return
		}
		*p.dst = &v
	}
	if start != nil && end != nil && *end < *start {
		s.reject(w, method, codeInvalidArgument, "end_ts before start_ts")
		return
	}

	s.ok(w, method, map[string]any{
		"instrument_name": instrument,
		"interval":        string(tf),
		"data":            s.market.candles(instrument, tf.Duration(), int(count), start, end),
	})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	var data []map[string]any
	for _, name := range s.market.instruments() {
		perp := strings.HasSuffix(name, "-PERP")
		inst := map[string]any{
			"symbol":              name,
			"inst_type":           "CCY_PAIR",
			"display_name":        name,
			"base_ccy":            baseCurrency(name),
			"quote_ccy":           "USD",
			"quote_decimals":      2,
			"quantity_decimals":   4,
			"price_tick_size":     "0.01",
			"qty_tick_size":       "0.0001",
			"max_leverage":        "10",
			"tradable":            true,
			"expiry_timestamp_ms": 0,
		}
		if perp {
			inst["inst_type"] = "PERPETUAL_SWAP"
			inst["display_name"] = name[:len(name)-len("-PERP")] + " Perpetual"
			inst["max_leverage"] = "100"
			inst["underlying_symbol"] = name[:len(name)-len("-PERP")] + "-INDEX"
		}
		data = append(data, inst)
	}
	s.ok(w, marketdata.EndpointInstruments, map[string]any{"data": data})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointBook
	q := r.URL.Query()

	instrument := q.Get("instrument_name")
	if !s.market.known(instrument) {
		s.reject(w, method, codeInvalidArgument, "Invalid instrument_name: %q", instrument)
		return
	}
	depth := int64(50)
	if v, present, err := intParam(q, "depth"); present {
		if err != nil || v < 1 || v > 50 {
			s.reject(w, method, codeInvalidArgument, "Invalid depth: %q", q.Get("depth"))
			return
		}
		depth = v
	}

	now := s.market.nowMs()
	bids, asks := s.market.book(instrument, int(depth), now)
	s.ok(w, method, map[string]any{
		"instrument_name": instrument,
		"depth":           depth,
		"data":            []map[string]any{{"bids": bids, "asks": asks, "t": now}},
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointTrades
	q := r.URL.Query()

	instrument := q.Get("instrument_name")
	if !s.market.known(instrument) {
		s.reject(w, method, codeInvalidArgument, "Invalid instrument_name: %q", instrument)
		return
	}
	count := int64(25)
	if v, present, err := intParam(q, "count"); present {
		if err != nil || v < 1 || v > 150 {
			s.reject(w, method, codeInvalidArgument, "Invalid count: %q", q.Get("count"))
			return
		}
		count = v
	}

	now := s.market.nowMs()
	n := int(min(count, 50))
	data := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		t := now - int64(i)*1000
		side := "BUY"
		if i%2 == 1 {
			side = "SELL"
		}
		data = append(data, map[string]any{
			"d":  strconv.FormatInt(t*1000+int64(i), 10),
			"t":  t,
			"tn": strconv.FormatInt(t*1_000_000+int64(i), 10),
			"q":  fixed(0.01*float64(i+1), 4),
			"p":  fixed(s.market.price(instrument, t), 2),
			"s":  side,
			"i":  instrument,
			"m":  strconv.FormatInt(t+int64(i), 10),
		})
	}
	s.ok(w, method, map[string]any{"data": data})
}

func (s *Server) ticker(instrument string, now int64) map[string]any {
	p := s.market.price(instrument, now)
	return map[string]any{
		"i":  instrument,
		"h":  fixed(p*1.01, 2),
		"l":  fixed(p*0.99, 2),
		"a":  fixed(p, 2),
		"c":  fixed(0.0012, 4),
		"b":  fixed(p-0.5, 2),
		"k":  fixed(p+0.5, 2),
		"v":  fixed(1234.5, 4),
		"vv": fixed(1234.5*p, 2),
		"oi": fixed(321, 4),
		"t":  now,
	}
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointTickers
	instrument := r.URL.Query().Get("instrument_name")
	now := s.market.nowMs()

	var data []map[string]any
	switch {
	case instrument == "":
		for _, name := range s.market.instruments() {
			data = append(data, s.ticker(name, now))
		}
	case s.market.known(instrument):
		data = append(data, s.ticker(instrument, now))
	default:
		s.reject(w, method, codeInvalidArgument, "Invalid instrument_name: %q", instrument)
		return
	}
	s.ok(w, method, map[string]any{"data": data})
}

// series builds count {v, t} points one minute apart, newest first.
func (s *Server) series(count int64, value func(t int64) string) []map[string]any {
	now := s.market.nowMs() / 60000 * 60000
	data := make([]map[string]any, 0, count)
	for i := int64(0); i < count; i++ {
		t := now - i*60000
		data = append(data, map[string]any{"v": value(t), "t": t})
	}
	return data
}

func countParam(w http.ResponseWriter, s *Server, q url.Values, method string, def, limit int64) (int64, bool) {
	v, present, err := intParam(q, "count")
	if !present {
		return def, true
	}
	if err != nil || v < 1 {
		s.reject(w, method, codeInvalidArgument, "Invalid count: %q", q.Get("count"))
		return 0, false
	}
	return min(v, limit), true
}

// baseCurrency strips the quote and contract suffix: BTCUSD-PERP and
// BTC_USD both give BTC.
func baseCurrency(instrument string) string {
	name := strings.TrimSuffix(instrument, "-PERP")
	name, _, _ = strings.Cut(name, "_")
	return strings.TrimSuffix(name, "USD")
}

func msDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("060102")
}

func (s *Server) handleInsurance(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointInsurance
	q := r.URL.Query()

	instrument := q.Get("instrument_name")
	if instrument == "" {
		s.reject(w, method, codeInvalidArgument, "instrument_name is required")
		return
	}
	count, ok := countParam(w, s, q, method, 25, 100)
	if !ok {
		return
	}
	s.ok(w, method, map[string]any{
		"instrument_name": instrument,
		"data": s.series(count, func(t int64) string {
			return fixed(1_000_000+float64(t%86_400_000)/1000, 2)
		}),
	})
}

var valuationTypes = map[string]bool{
	"index_price":            true,
	"mark_price":             true,
	"funding_hist":           true,
	"funding_rate":           true,
	"estimated_funding_rate": true,
}

func (s *Server) handleValuations(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointValuations
	q := r.URL.Query()

	instrument := q.Get("instrument_name")
	if instrument == "" {
		s.reject(w, method, codeInvalidArgument, "instrument_name is required")
		return
	}
	vt := q.Get("valuation_type")
	if !valuationTypes[vt] {
		s.reject(w, method, codeInvalidArgument, "Invalid valuation_type: %q", vt)
		return
	}
	count, ok := countParam(w, s, q, method, 25, 100)
	if !ok {
		return
	}

	underlying := strings.TrimSuffix(strings.TrimSuffix(instrument, "-INDEX"), "-PERP") + "-PERP"
	base := 1.0
	if s.market.known(underlying) {
		base = s.market.prices[underlying]
	}
	s.ok(w, method, map[string]any{
		"instrument_name": instrument,
		"data": s.series(count, func(t int64) string {
			if strings.HasPrefix(vt, "funding") || strings.HasPrefix(vt, "estimated") {
				return fixed(0.0001, 6)
			}
			return fixed(base*(1+0.002*float64(t%7)/7), 2)
		}),
	})
}

func (s *Server) handleExpiredSettlementPrice(w http.ResponseWriter, r *http.Request) {
	const method = marketdata.EndpointExpiredSettlementPrice
	q := r.URL.Query()

	instType := q.Get("instrument_type")
	if instType != "FUTURE" && instType != "OPTION" {
		s.reject(w, method, codeInvalidArgument, "Invalid instrument_type: %q", instType)
		return
	}
	page := int64(1)
	if v, present, err := intParam(q, "page"); present {
		if err != nil || v < 1 {
			s.reject(w, method, codeInvalidArgument, "Invalid page: %q", q.Get("page"))
			return
		}
		page = v
	}

	// weekly expiries walking back from the current day
	day := s.market.nowMs() / 86_400_000 * 86_400_000
	var data []map[string]any
	for i := int64(0); i < 3; i++ {
		x := day - ((page-1)*3+i+1)*7*86_400_000
		data = append(data, map[string]any{
			"i": fmt.Sprintf("BTCUSD-%s", msDate(x)),
			"x": x,
			"v": fixed(s.market.price("BTCUSD-PERP", x), 2),
			"t": x + 1000,
		})
	}
	s.ok(w, method, map[string]any{"data": data})
}

func (s *Server) handleRiskParameters(w http.ResponseWriter, r *http.Request) {
	s.ok(w, marketdata.EndpointRiskParameters, map[string]any{
		"default_max_product_leverage_for_spot":    "10",
		"default_max_product_leverage_for_perps":   "100",
		"default_max_product_leverage_for_futures": "100",
		"default_unit_margin_rate":                 "0.05",
		"default_collateral_cap":                   "-1",
		"update_timestamp_ms":                      s.market.nowMs(),
		"base_currency_config": []map[string]any{
			{"instrument_name": "BTC", "minimum_haircut": "0.05", "max_order_notional_usd": "5000000", "min_order_notional_usd": "1"},
			{"instrument_name": "ETH", "minimum_haircut": "0.06", "max_product_leverage_for_spot": "5", "daily_notional_limit": 20000000},
		},
	})
}

type announcement struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	ProductType string `json:"product_type"`
	AnnouncedAt int64  `json:"announced_at"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

var announcements = []announcement{
	{ID: "1", Category: "system", ProductType: "Spot", Title: "Scheduled maintenance", Content: "Spot trading pauses for upgrades."},
	{ID: "2", Category: "list", ProductType: "Derivative", Title: "New perpetual listing", Content: "SOLUSD-PERP goes live."},
	{ID: "3", Category: "system", ProductType: "Derivative", Title: "Funding interval change", Content: "Funding settles hourly."},
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, product := q.Get("category"), q.Get("product_type")

	now := s.market.nowMs()
	data := []announcement{}
	for i, a := range announcements {
		if category != "" && a.Category != category {
			continue
		}
		if product != "" && a.ProductType != product {
			continue
		}
		a.AnnouncedAt = now - int64(i+1)*3_600_000
		data = append(data, a)
	}
	s.ok(w, marketdata.EndpointAnnouncements, map[string]any{"data": data})
}
