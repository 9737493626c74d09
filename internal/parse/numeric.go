package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotNumeric is returned when a present value cannot be read as a number.
var ErrNotNumeric = errors.New("not a numeric value")

// maxExactInt is the largest magnitude a float64 holds without losing integer precision.
const maxExactInt = 1 << 53

// absentTokens are string values that mean "no value" rather than a parse failure.
var absentTokens = map[string]struct{}{
	"":     {},
	"null": {},
	"none": {},
	"n/a":  {},
	"na":   {},
}

// IsAbsent reports whether v carries no value: nil, or a string that is blank
// or one of the null-like tokens (case-insensitive).
func IsAbsent(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		_, ok := absentTokens[strings.ToLower(strings.TrimSpace(s))]
		return ok
	}
	return false
}

// Float reads v as a float64. It returns (nil, nil) when v is absent and
// (nil, err) when v is present but not a finite number.
func Float(v any) (*float64, error) {
	if IsAbsent(v) {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return finite(float64(n))
	case int32:
		return finite(float64(n))
	case int64:
		return finite(float64(n))
	case json.Number:
		return parseFloat(n.String())
	case string:
		return parseFloat(n)
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrNotNumeric, v)
}

// Int reads v as an integer, truncating any fractional part.
// Absent and failure semantics match Float.
func Int(v any) (*int, error) {
	f, err := Float(v)
	if err != nil || f == nil {
		return nil, err
	}
	if math.Abs(*f) > maxExactInt {
		return nil, fmt.Errorf("%w: %v out of integer range", ErrNotNumeric, *f)
	}
	i := int(*f)
	return &i, nil
}

// String reads v as a trimmed string. Blank strings and non-scalar values yield nil.
func String(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case json.Number:
		s = t.String()
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

func parseFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return finite(f)
}

func finite(f float64) (*float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrNotNumeric, f)
	}
	return &f, nil
}
