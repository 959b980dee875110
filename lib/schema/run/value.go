// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// NaN is the sentinel written for a column omitted in an append call.
const NaN = "NaN"

// Kind discriminates the three cell value types of the metrics log.
type Kind uint8

const (
	// Number is a float64 cell, including the NaN sentinel.
	Number Kind = iota
	// Time is an RFC 3339 timestamp cell.
	Time
	// Text is a cell that parses as neither number nor timestamp.
	Text
)

// Value is one parsed cell of the metrics log.
type Value struct {
	Kind   Kind
	Number float64
	Time   time.Time
	Text   string
}

// Float returns a float64 Value.
func Float(f float64) Value { return Value{Kind: Number, Number: f} }

// Stamp returns a timestamp Value.
func Stamp(t time.Time) Value { return Value{Kind: Time, Time: t} }

// String returns a text Value.
func String(s string) Value { return Value{Kind: Text, Text: s} }

// IsNaN reports whether the value is the NaN sentinel.
func (v Value) IsNaN() bool {
	return v.Kind == Number && math.IsNaN(v.Number)
}

// ParseValue interprets one field of a metrics row: first as a
// number, then as an RFC 3339 timestamp, falling back to raw text.
func ParseValue(field string) Value {
	if number, err := strconv.ParseFloat(field, 64); err == nil {
		return Float(number)
	}
	if stamp, err := time.Parse(time.RFC3339Nano, field); err == nil {
		return Stamp(stamp)
	}
	return String(field)
}

// FormatValue renders a Value in the form ParseValue inverts.
func FormatValue(v Value) string {
	switch v.Kind {
	case Number:
		if math.IsNaN(v.Number) {
			return NaN
		}
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case Time:
		return Timestamp(v.Time)
	default:
		return v.Text
	}
}

// EscapeName escapes literal commas in a column name as `\,` for the
// header row.
func EscapeName(name string) string {
	return strings.ReplaceAll(name, ",", `\,`)
}

// SplitHeader splits the header row on unescaped commas and
// unescapes each resulting column name.
func SplitHeader(line string) []string {
	var names []string
	var current strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			if r != ',' {
				// A backslash before anything but a comma is
				// literal content.
				current.WriteRune('\\')
			}
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			names = append(names, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		current.WriteRune('\\')
	}
	names = append(names, current.String())
	return names
}
