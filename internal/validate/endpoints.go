package validate

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Method requires the envelope's method to equal want.
func Method(body []byte, want string) error {
	env, err := envelope(body)
	if err != nil {
		return err
	}
	raw, ok := env["method"]
	if !ok {
		return fmt.Errorf("missing %q in response", "method")
	}
	got, err := asString(raw)
	if err != nil {
		return fmt.Errorf("method: %w", err)
	}
	if got != want {
		return fmt.Errorf("method %q, want %q", got, want)
	}
	return nil
}

// Rejected returns nil when a response refuses the request: a 4xx status,
// a non-zero envelope code, an "error" field, or an empty result.data. A
// 5xx is a server fault, not a rejection, and a 200 carrying data is
// reported as an error.
func Rejected(status int, body []byte) error {
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("status %d: server error, want a client error", status)
	}
	if status >= http.StatusBadRequest {
		return nil
	}
	env, err := envelope(body)
	if err != nil {
		return fmt.Errorf("status %d with a non-JSON body", status)
	}
	if _, ok := env["error"]; ok {
		return nil
	}
	if raw, ok := env["code"]; ok {
		if code, err := asInt(raw); err == nil && code != 0 {
			return nil
		}
	}
	_, data, err := resultData(body)
	if err != nil || len(data) == 0 {
		return nil
	}
	return fmt.Errorf("status %d with %d result entries, want a rejection", status, len(data))
}

// requireRoot checks the id, method, code and result members every
// documented REST response carries.
func requireRoot(body []byte) error {
	env, err := envelope(body)
	if err != nil {
		return err
	}
	return requireFields(env, "response", "id", "method", "code", "result")
}

// entries checks that every element of data is an object holding fields.
func entries(data []json.RawMessage, what string, fields ...string) ([]object, error) {
	out := make([]object, len(data))
	for i, raw := range data {
		name := fmt.Sprintf("%s[%d]", what, i)
		obj, err := decodeObject(raw, name)
		if err != nil {
			return nil, err
		}
		if err := requireFields(obj, name, fields...); err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}

type fieldCheck struct {
	field string
	ok    func(json.RawMessage) bool
	want  string
}

func stringField(f string) fieldCheck { return fieldCheck{f, isString, "a string"} }
func intField(f string) fieldCheck    { return fieldCheck{f, isInt, "an integer"} }

func nullableString(f string) fieldCheck {
	return fieldCheck{f, func(r json.RawMessage) bool {
		k := kind(r)
		return k == kindString || k == kindNull
	}, "a string or null"}
}

func stringOrNumber(f string) fieldCheck {
	return fieldCheck{f, func(r json.RawMessage) bool {
		k := kind(r)
		return k == kindString || k == kindNumber
	}, "a number or string"}
}

// checkTypes applies checks to obj. Absent fields are skipped unless the
// caller required them beforehand.
func checkTypes(obj object, what string, checks ...fieldCheck) error {
	for _, c := range checks {
		raw, ok := obj[c.field]
		if !ok {
			continue
		}
		if !c.ok(raw) {
			return fmt.Errorf("%s.%s should be %s, got %s", what, c.field, c.want, raw)
		}
	}
	return nil
}

var instrumentFields = []string{
	"symbol", "inst_type", "display_name", "base_ccy", "quote_ccy",
	"quote_decimals", "quantity_decimals", "price_tick_size",
	"qty_tick_size", "max_leverage", "tradable", "expiry_timestamp_ms",
}

// Instruments checks public/get-instruments: at least one instrument, each
// with the documented attributes.
func Instruments(body []byte) error {
	_, data, err := resultData(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("result.data holds no instruments")
	}
	objs, err := entries(data, "instrument", instrumentFields...)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		symbol, _ := asString(obj["symbol"])
		what := fmt.Sprintf("instrument %q", symbol)
		if err := checkTypes(obj, what, stringField("symbol"), stringField("inst_type")); err != nil {
			return err
		}
		if kind(obj["tradable"]) != kindBool {
			return fmt.Errorf("%s.tradable should be a boolean, got %s", what, obj["tradable"])
		}
		if truthy(obj["expiry_timestamp_ms"]) && !isInt(obj["expiry_timestamp_ms"]) {
			return fmt.Errorf("%s.expiry_timestamp_ms should be an integer, got %s", what, obj["expiry_timestamp_ms"])
		}
		if truthy(obj["max_leverage"]) && !isString(obj["max_leverage"]) {
			return fmt.Errorf("%s.max_leverage should be a string, got %s", what, obj["max_leverage"])
		}
		if raw, ok := obj["underlying_symbol"]; ok && truthy(raw) && !isString(raw) {
			return fmt.Errorf("%s.underlying_symbol should be a string, got %s", what, raw)
		}
	}
	return nil
}

// truthy mirrors the optional-field convention of the API: null, false, 0
// and "" mean the attribute is not set.
func truthy(raw json.RawMessage) bool {
	switch kind(raw) {
	case kindNull, kindInvalid:
		return false
	case kindBool:
		return string(raw) == "true"
	case kindString:
		s, _ := asString(raw)
		return s != ""
	case kindNumber:
		n, err := number(raw)
		return err == nil && !n.IsZero()
	}
	return true
}

// Trades checks public/get-trades: at most maxCount trades, each with typed
// d, t, tn, q, p, s, i, m and i equal to instrument.
func Trades(body []byte, instrument string, maxCount int) error {
	_, data, err := resultData(body)
	if err != nil {
		return err
	}
	if len(data) > maxCount {
		return fmt.Errorf("got %d trades, want %d or less", len(data), maxCount)
	}
	objs, err := entries(data, "trade", "d", "t", "tn", "q", "p", "s", "i", "m")
	if err != nil {
		return err
	}
	for i, obj := range objs {
		what := fmt.Sprintf("trade[%d]", i)
		if err := checkTypes(obj, what,
			stringField("d"), intField("t"), stringOrNumber("tn"),
			stringField("q"), stringField("p"), stringField("s"), stringField("m"),
		); err != nil {
			return err
		}
		if got, _ := asString(obj["i"]); got != instrument {
			return fmt.Errorf("%s.i %q, want %q", what, got, instrument)
		}
	}
	return nil
}

// Tickers checks public/get-tickers: typed fields on every ticker and, when
// instrument is set, a ticker for it.
func Tickers(body []byte, instrument string) error {
	_, data, err := resultData(body)
	if err != nil {
		return err
	}
	objs, err := entries(data, "ticker", "i", "t")
	if err != nil {
		return err
	}
	found := instrument == ""
	for n, obj := range objs {
		what := fmt.Sprintf("ticker[%d]", n)
		if err := checkTypes(obj, what,
			stringField("i"), intField("t"),
			stringField("v"), stringField("vv"), stringField("oi"),
			nullableString("h"), nullableString("l"), nullableString("a"),
			nullableString("c"), nullableString("b"), nullableString("k"),
		); err != nil {
			return err
		}
		if i, _ := asString(obj["i"]); i == instrument {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%s not found in tickers data", instrument)
	}
	if len(objs) > 0 {
		if err := requireFields(objs[0], "ticker[0]", "v", "vv"); err != nil {
			return err
		}
	}
	return nil
}

// valueSeries checks the {instrument_name, data:[{v,t}]} shape shared by
// insurance and valuations. The series must not be empty.
func valueSeries(body []byte, what string) (object, error) {
	if err := requireRoot(body); err != nil {
		return nil, err
	}
	result, data, err := resultData(body)
	if err != nil {
		return nil, err
	}
	if err := requireFields(result, "result", "instrument_name"); err != nil {
		return nil, err
	}
	if !isString(result["instrument_name"]) {
		return nil, fmt.Errorf("result.instrument_name should be a string, got %s", result["instrument_name"])
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no %s data returned", what)
	}
	objs, err := entries(data, what, "v", "t")
	if err != nil {
		return nil, err
	}
	for i, obj := range objs {
		if err := checkTypes(obj, fmt.Sprintf("%s[%d]", what, i), stringField("v"), intField("t")); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Insurance checks public/get-insurance.
func Insurance(body []byte) error {
	_, err := valueSeries(body, "insurance")
	return err
}

// Valuations checks public/get-valuations and, when instrument is set, the
// echoed instrument_name.
func Valuations(body []byte, instrument string) error {
	result, err := valueSeries(body, "valuation")
	if err != nil {
		return err
	}
	if instrument == "" {
		return nil
	}
	if got, _ := asString(result["instrument_name"]); got != instrument {
		return fmt.Errorf("result.instrument_name %q, want %q", got, instrument)
	}
	return nil
}

// ExpiredSettlementPrices checks public/get-expired-settlement-price: a
// non-empty list of {i, x, v, t}.
func ExpiredSettlementPrices(body []byte) error {
	if err := requireRoot(body); err != nil {
		return err
	}
	_, data, err := resultData(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("settlement data array is empty")
	}
	objs, err := entries(data, "settlement", "i", "x", "v", "t")
	if err != nil {
		return err
	}
	for n, obj := range objs {
		if err := checkTypes(obj, fmt.Sprintf("settlement[%d]", n),
			stringField("i"), intField("x"), stringField("v"), intField("t"),
		); err != nil {
			return err
		}
	}
	return nil
}

var riskRootFields = []string{
	"default_max_product_leverage_for_spot",
	"default_max_product_leverage_for_perps",
	"default_max_product_leverage_for_futures",
	"default_unit_margin_rate",
	"default_collateral_cap",
	"update_timestamp_ms",
	"base_currency_config",
}

var riskOptionalFields = []string{
	"collateral_cap_notional", "minimum_haircut", "max_product_leverage_for_spot",
	"max_product_leverage_for_perps", "max_product_leverage_for_futures",
	"unit_margin_rate", "max_short_sell_limit", "daily_notional_limit",
	"max_order_notional_usd", "min_order_notional_usd",
}

// RiskParameters checks public/get-risk-parameters: the default_* root
// fields and a base_currency_config list whose entries name an instrument.
func RiskParameters(body []byte) error {
	if err := requireRoot(body); err != nil {
		return err
	}
	_, result, err := resultOf(body)
	if err != nil {
		return err
	}
	if err := requireFields(result, "result", riskRootFields...); err != nil {
		return err
	}
	configs, err := decodeArray(result["base_currency_config"], "base_currency_config")
	if err != nil {
		return err
	}
	objs, err := entries(configs, "base_currency_config", "instrument_name")
	if err != nil {
		return err
	}
	checks := make([]fieldCheck, len(riskOptionalFields))
	for i, f := range riskOptionalFields {
		checks[i] = stringOrNumber(f)
	}
	for _, obj := range objs {
		name, _ := asString(obj["instrument_name"])
		if err := checkTypes(obj, fmt.Sprintf("base_currency_config %q", name), checks...); err != nil {
			return err
		}
	}
	return nil
}

// Announcements checks that result.data is a list of announcements carrying
// id, category, product_type, announced_at, title and content.
func Announcements(body []byte) error {
	_, data, err := resultData(body)
	if err != nil {
		return err
	}
	_, err = entries(data, "announcement", "id", "category", "product_type", "announced_at", "title", "content")
	return err
}
