package stream

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode parses a raw frame into a Message.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := codec.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	msg.Raw = append(json.RawMessage(nil), frame...)
	return msg, nil
}

// Fields returns the top-level object of the frame keyed by field name.
func (m Message) Fields() (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := codec.Unmarshal(m.Raw, &fields); err != nil {
		return nil, fmt.Errorf("decode message fields: %w", err)
	}
	return fields, nil
}

// Book decodes params as a public/book push.
func (m Message) Book() (*BookParams, error) {
	if len(m.Params) == 0 {
		return nil, fmt.Errorf("message %q has no params", m.Method)
	}
	var p BookParams
	if err := codec.Unmarshal(m.Params, &p); err != nil {
		return nil, fmt.Errorf("decode book params: %w", err)
	}
	return &p, nil
}

// IsError reports whether the server flagged the message with a non-zero code.
func (m Message) IsError() bool {
	return m.Code != 0
}

// String returns the frame as received.
func (m Message) String() string {
	return string(m.Raw)
}

// ConfirmedChannels lists the channels a subscribe response acknowledges.
// Error responses acknowledge nothing.
func (m Message) ConfirmedChannels() []string {
	if m.Method != MethodSubscribe || m.IsError() {
		return nil
	}
	var ack subscriptionAck
	if err := codec.Unmarshal(m.Raw, &ack); err != nil {
		return nil
	}

	channels := append([]string(nil), ack.Params.Channels...)
	switch {
	case ack.Result.Subscription != "":
		channels = append(channels, ack.Result.Subscription)
	case ack.Result.Channel != "":
		channels = append(channels, ack.Result.Channel)
	}
	return channels
}
