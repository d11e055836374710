// Package validate holds the pure checks applied to REST bodies and streaming
// messages. Every check returns nil when the input is valid, or an error that
// names the offending field or relation.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type object = map[string]json.RawMessage

func decodeObject(raw json.RawMessage, what string) (object, error) {
	if kind(raw) != kindObject {
		return nil, fmt.Errorf("%s is not an object", what)
	}
	var obj object
	if err := codec.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return obj, nil
}

func decodeArray(raw json.RawMessage, what string) ([]json.RawMessage, error) {
	if kind(raw) != kindArray {
		return nil, fmt.Errorf("%s is not a list", what)
	}
	var arr []json.RawMessage
	if err := codec.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return arr, nil
}

// requireFields fails on the first missing key, in the order given.
func requireFields(obj object, what string, fields ...string) error {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			return fmt.Errorf("missing %q in %s", f, what)
		}
	}
	return nil
}

type jsonKind int

const (
	kindInvalid jsonKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func kind(raw json.RawMessage) jsonKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return kindInvalid
	}
	switch c := raw[0]; {
	case c == 'n':
		return kindNull
	case c == 't' || c == 'f':
		return kindBool
	case c == '"':
		return kindString
	case c == '[':
		return kindArray
	case c == '{':
		return kindObject
	case c == '-' || (c >= '0' && c <= '9'):
		return kindNumber
	}
	return kindInvalid
}

func isString(raw json.RawMessage) bool { return kind(raw) == kindString }

// isInt accepts JSON integers only; 1.5 and "1" are rejected.
func isInt(raw json.RawMessage) bool {
	if kind(raw) != kindNumber {
		return false
	}
	_, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	return err == nil
}

func asString(raw json.RawMessage) (string, error) {
	var s string
	if err := codec.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("not a string: %s", raw)
	}
	return s, nil
}

func asInt(raw json.RawMessage) (int64, error) {
	if !isInt(raw) {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	return strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
}

// number reads a decimal sent either as a JSON string or a bare number.
func number(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	switch kind(raw) {
	case kindString:
		if err := codec.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
	case kindNumber:
		s = string(bytes.TrimSpace(raw))
	default:
		return decimal.Zero, fmt.Errorf("not a number: %s", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// envelope decodes the top-level body of a REST response.
func envelope(body []byte) (object, error) {
	return decodeObject(body, "response")
}

// resultOf returns the result object of a REST body.
func resultOf(body []byte) (object, object, error) {
	env, err := envelope(body)
	if err != nil {
		return nil, nil, err
	}
	raw, ok := env["result"]
	if !ok {
		return nil, nil, fmt.Errorf("missing %q in response", "result")
	}
	result, err := decodeObject(raw, "result")
	if err != nil {
		return nil, nil, err
	}
	return env, result, nil
}

// resultData returns result.data of a REST body as a list.
func resultData(body []byte) (object, []json.RawMessage, error) {
	_, result, err := resultOf(body)
	if err != nil {
		return nil, nil, err
	}
	raw, ok := result["data"]
	if !ok {
		return nil, nil, fmt.Errorf("missing %q in result", "data")
	}
	data, err := decodeArray(raw, "result.data")
	if err != nil {
		return nil, nil, err
	}
	return result, data, nil
}
