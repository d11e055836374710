package stream

import (
	"encoding/json"
	"time"
)

// Method names seen on the market streaming API.
const (
	MethodSubscribe        = "subscribe"
	MethodUnsubscribe      = "unsubscribe"
	MethodBook             = "public/book"
	MethodHeartbeat        = "public/heartbeat"
	MethodRespondHeartbeat = "public/respond-heartbeat"
)

// Message is one decoded inbound frame. Raw keeps the original bytes so that
// validators can check field presence, not just zero values.
type Message struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"-"`
}

// Request is an outbound control envelope.
type Request struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Level is one order-book price point: [price, quantity, order-count].
// Elements stay raw because the API sends them as strings.
type Level []json.RawMessage

// BookData is the first element of params.data on a public/book push.
type BookData struct {
	InstrumentName string  `json:"instrument_name"`
	Bids           []Level `json:"bids"`
	Asks           []Level `json:"asks"`
	T              int64   `json:"t"`
}

// BookParams is the params object of a public/book push.
type BookParams struct {
	Channel      string     `json:"channel"`
	Subscription string     `json:"subscription"`
	Data         []BookData `json:"data"`
}

// subscriptionAck covers both confirmation shapes: params.channels (list) and
// result.subscription / result.channel (single).
type subscriptionAck struct {
	Params struct {
		Channels []string `json:"channels"`
	} `json:"params"`
	Result struct {
		Channel      string `json:"channel"`
		Subscription string `json:"subscription"`
	} `json:"result"`
}
