// Package chart renders utilization series as short glyph strings.
//
// Values are percentages on a 0-100 scale, oldest first: the leftmost glyph
// is the oldest point. Every chart ends with the average of the series,
// formatted as "..NN%", and the "|" delimiter.
package chart

import (
	"fmt"
	"math"
	"strings"

	"codeberg.org/mutker/thrud/internal/errors"
)

// Encoding selects the glyph set used for a chart.
type Encoding string

const (
	Bar     Encoding = "bar"
	Braille Encoding = "braille"
)

// Delimiter marks the end of chart data.
const Delimiter = "|"

// Encodings lists every supported encoding.
var Encodings = []Encoding{Bar, Braille}

func (e Encoding) String() string {
	return string(e)
}

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool {
	switch e {
	case Bar, Braille:
		return true
	default:
		return false
	}
}

// ParseEncoding maps a stored or user supplied name to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	e := Encoding(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", errors.New().WithData(ErrInvalidEncoding, s)
	}
	return e, nil
}

// Encode renders values with the given encoding.
func Encode(enc Encoding, values []float64) (string, error) {
	switch enc {
	case Bar:
		return EncodeBar(values), nil
	case Braille:
		return EncodeBraille(values), nil
	default:
		return "", errors.New().WithData(ErrInvalidEncoding, string(enc))
	}
}

// Width returns the number of glyphs enc emits for n values, excluding
// the annotation suffix.
func Width(enc Encoding, n int) int {
	if enc == Braille {
		return (n + 1) / 2
	}
	return n
}

// Annotation formats the average of values as "..NN%|".
// An empty series averages to zero.
func Annotation(values []float64) string {
	return fmt.Sprintf("..%2.0f%%%s", Average(values), Delimiter)
}

// Average returns the mean of the clamped values.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += clamp(v)
	}
	return sum / float64(len(values))
}

// clamp forces v into [0, 100]; NaN becomes 0.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 100:
		return 100
	}
	return v
}
