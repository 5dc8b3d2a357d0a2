package metrics

import (
	"math"
	"strconv"
)

// ValueKind is the stored type of a sample value.
type ValueKind string

const (
	KindInteger ValueKind = "integer"
	KindFloat   ValueKind = "float"
	KindString  ValueKind = "string"
	KindBoolean ValueKind = "boolean"
)

// Valid reports whether k is one of the stored kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case KindInteger, KindFloat, KindString, KindBoolean:
		return true
	default:
		return false
	}
}

// Value holds exactly one of the typed payloads, selected by Kind.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
	Bool  bool
}

func Int(v int64) Value     { return Value{Kind: KindInteger, Int: v} }
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func Text(v string) Value   { return Value{Kind: KindString, Text: v} }
func Bool(v bool) Value     { return Value{Kind: KindBoolean, Bool: v} }

// Number returns the value as a float64 for integer and float kinds.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', 2, 64)
	case KindString:
		return v.Text
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

func (v Value) validate() string {
	switch {
	case !v.Kind.Valid():
		return "unknown value kind"
	case v.Kind == KindFloat && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)):
		return "non-finite float"
	}
	return ""
}
