package marketdata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the raw outcome of a REST call. Non-2xx statuses are ordinary
// responses; callers inspect StatusCode themselves.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Envelope is the common wrapper around every REST payload.
type Envelope struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Envelope decodes the response body.
func (r *Response) Envelope() (*Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(r.Body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope (status %d): %w", r.StatusCode, err)
	}
	return &env, nil
}

// DecodeResult decodes the envelope's result into v.
func (r *Response) DecodeResult(v any) error {
	env, err := r.Envelope()
	if err != nil {
		return err
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("response %q has no result", env.Method)
	}
	if err := codec.Unmarshal(env.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// IsJSON reports whether the body parses as a JSON object.
func (r *Response) IsJSON() bool {
	var probe map[string]json.RawMessage
	return codec.Unmarshal(r.Body, &probe) == nil
}

// CandlestickResult is the result of public/get-candlestick.
type CandlestickResult struct {
	InstrumentName string   `json:"instrument_name"`
	Interval       string   `json:"interval"`
	Data           []Candle `json:"data"`
}

// Candle is one OHLCV bucket. The API sends prices and volume as decimal
// strings; decimal.Decimal accepts both quoted and bare numbers.
type Candle struct {
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
	T      int64           `json:"t"`
}
