// Package relation decodes relationship metadata of unknown encoding into
// integer ID sets.
//
// A raw value may be a number, a delimited string, a legacy serialized
// array, a JSON array, or freeform text. Decoding is an ordered chain of
// parsers; the first one that recognizes the value wins. When a non-empty
// value yields no integer at all the result is marked unparseable instead of
// being silently reported as empty.
package relation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Marker is the sentinel recorded for values no integer could be extracted from.
const Marker = "unparseable"

// Encoding names the parser that recognized a value.
type Encoding string

const (
	EncodingEmpty      Encoding = "empty"
	EncodingNumber     Encoding = "number"
	EncodingArray      Encoding = "array"
	EncodingSerialized Encoding = "serialized"
	EncodingJSON       Encoding = "json"
	EncodingDelimited  Encoding = "delimited"
)

// Result is a normalized relationship value.
type Result struct {
	// IDs are unique and in first-seen order.
	IDs         []int64
	Encoding    Encoding
	Unparseable bool
	// Raw is the original text, kept for audit when Unparseable.
	Raw string
	// Err is set when a recognized encoding was malformed. It never aborts.
	Err error
}

func (r Result) Empty() bool { return len(r.IDs) == 0 }

func (r Result) Contains(id int64) bool {
	for _, v := range r.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Marker returns Marker for unparseable results and "" otherwise.
func (r Result) Marker() string {
	if r.Unparseable {
		return Marker
	}
	return ""
}

// Normalize decodes raw into a set of integer IDs.
func Normalize(raw any) Result {
	elems, enc, err := decode(raw, splitIDs)
	res := Result{Encoding: enc, Err: err}
	seen := map[int64]bool{}
	for _, e := range elems {
		id, ok := coerceID(e)
		if !ok || id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		res.IDs = append(res.IDs, id)
	}
	if len(res.IDs) == 0 && hasContent(elems, enc) {
		res.Unparseable = true
		res.Raw = rawText(raw)
	}
	return res
}

// Element is one entry of an ordered sequence, such as a curriculum list.
type Element struct {
	ID      int64
	Text    string
	Numeric bool
}

// Sequence decodes raw into its ordered elements without dropping
// non-numeric entries. Delimited strings are split on commas only, since
// entries may be titles containing spaces.
func Sequence(raw any) ([]Element, Encoding, error) {
	elems, enc, err := decode(raw, splitCommas)
	out := make([]Element, 0, len(elems))
	for _, e := range elems {
		text := strings.TrimSpace(rawText(e))
		if id, ok := coerceID(e); ok && id > 0 {
			out = append(out, Element{ID: id, Text: text, Numeric: true})
			continue
		}
		if text == "" {
			continue
		}
		out = append(out, Element{Text: text})
	}
	return out, enc, err
}

type splitter func(string) []string

func splitIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func splitCommas(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decode runs the parser chain and returns flat elements.
func decode(raw any, split splitter) ([]any, Encoding, error) {
	switch v := raw.(type) {
	case nil:
		return nil, EncodingEmpty, nil
	case int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return []any{v}, EncodingNumber, nil
	case []any:
		return flatten(v), EncodingArray, nil
	case []int64:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out, EncodingArray, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, EncodingArray, nil
	case []byte:
		return decodeString(string(v), split)
	case string:
		return decodeString(v, split)
	}
	return []any{fmt.Sprint(raw)}, EncodingDelimited, nil
}

func decodeString(s string, split splitter) ([]any, Encoding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, EncodingEmpty, nil
	}

	var serErr error
	if looksSerialized(s) {
		v, err := decodeSerialized(s)
		if err == nil {
			if arr, ok := v.([]any); ok {
				return flatten(arr), EncodingSerialized, nil
			}
			if v == nil {
				return nil, EncodingEmpty, nil
			}
			return []any{v}, EncodingSerialized, nil
		}
		serErr = err
	}

	if strings.HasPrefix(s, "[") {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var arr []any
		if err := dec.Decode(&arr); err == nil {
			return flatten(arr), EncodingJSON, serErr
		}
	}

	parts := split(s)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, EncodingDelimited, serErr
}

// flatten lifts nested arrays and {"id": n} objects into a flat element list.
func flatten(in []any) []any {
	out := make([]any, 0, len(in))
	for _, e := range in {
		switch v := e.(type) {
		case []any:
			out = append(out, flatten(v)...)
		case map[string]any:
			if id, ok := v["id"]; ok {
				out = append(out, id)
			} else if id, ok := v["ID"]; ok {
				out = append(out, id)
			}
		default:
			out = append(out, v)
		}
	}
	return out
}

// coerceID converts a numeric element to an ID. Zero is accepted as a
// numeric value (the source writes 0 for "none") but callers drop it.
func coerceID(e any) (int64, bool) {
	switch v := e.(type) {
	case int:
		return int64(v), v >= 0
	case int32:
		return int64(v), v >= 0
	case int64:
		return v, v >= 0
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	case float32:
		return coerceFloat(float64(v))
	case float64:
		return coerceFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, n >= 0
		}
		if f, err := v.Float64(); err == nil {
			return coerceFloat(f)
		}
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, n >= 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".") {
			return coerceFloat(f)
		}
	}
	return 0, false
}

func coerceFloat(f float64) (int64, bool) {
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// hasContent tells an intentionally empty value apart from one that carried
// data we could not use.
func hasContent(elems []any, enc Encoding) bool {
	if enc == EncodingEmpty {
		return false
	}
	for _, e := range elems {
		if id, ok := coerceID(e); ok && id == 0 {
			continue
		}
		if e == nil {
			continue
		}
		if s, ok := e.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}

func rawText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
