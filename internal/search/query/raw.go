package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is one decoded input value. Exactly one of Str, Num or Bool is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// Raw is decoded, not yet validated search input keyed by folded key.
type Raw map[string]Value

// ValidationError reports input that cannot be coerced into a request at all.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid search input: %s: %v", e.Reason, e.Err)
	}
	return "invalid search input: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FromValues decodes a query string. The first value of each key wins.
func FromValues(values url.Values) Raw {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	raw := make(Raw, len(values))
	for _, key := range keys {
		if len(values[key]) == 0 {
			continue
		}
		raw[foldKey(key)] = StringValue(values[key][0])
	}
	return raw
}

// DecodeJSON decodes a JSON object body. Nested objects and arrays are
// ignored; anything other than an object is a ValidationError.
func DecodeJSON(body []byte) (Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Raw{}, nil
	}
	if trimmed[0] != '{' {
		return nil, &ValidationError{Reason: "body must be a JSON object"}
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON body", Err: err}
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	raw := make(Raw, len(fields))
	for _, key := range keys {
		value, ok := decodeJSONValue(fields[key])
		if !ok {
			continue
		}
		raw[foldKey(key)] = value
	}
	return raw, nil
}

func decodeJSONValue(v any) (Value, bool) {
	switch typed := v.(type) {
	case nil:
		return Value{Kind: KindNull}, true
	case string:
		return StringValue(typed), true
	case bool:
		return BoolValue(typed), true
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return StringValue(typed.String()), true
		}
		return NumberValue(n), true
	default:
		return Value{}, false
	}
}

func foldKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (v Value) text() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	default:
		return "", false
	}
}

func (v Value) boolean() (bool, bool) {
	switch v.Kind {
	case KindBool:
		return v.Bool, true
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func (v Value) number() (float64, bool) {
	var n float64
	switch v.Kind {
	case KindNumber:
		n = v.Num
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func (v Value) integer() (int, bool) {
	n, ok := v.number()
	if !ok || n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

// canonical renders the value for the canonical request string.
func (v Value) canonical() string {
	switch v.Kind {
	case KindString:
		return "s:" + url.QueryEscape(v.Str)
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.Bool)
	default:
		return "null"
	}
}
