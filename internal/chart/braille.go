package chart

import "strings"

// brailleGlyphs is indexed [left][right] by level. Level 0 on both sides
// draws a plain space.
var brailleGlyphs = [5][5]rune{
	{' ', '⢀', '⢠', '⢰', '⢸'},
	{'⣀', '⣀', '⣠', '⣰', '⣸'},
	{'⣄', '⣄', '⣤', '⣴', '⣼'},
	{'⣆', '⣆', '⣦', '⣶', '⣾'},
	{'⣇', '⣇', '⣧', '⣷', '⣿'},
}

// BrailleLevel quantizes a percentage to 0..4.
func BrailleLevel(v float64) int {
	v = clamp(v)
	switch {
	case v == 0:
		return 0
	case v <= 25:
		return 1
	case v <= 50:
		return 2
	case v <= 75:
		return 3
	default:
		return 4
	}
}

// EncodeBraille draws one glyph per pair of values. An odd trailing value
// is paired with zero.
func EncodeBraille(values []float64) string {
	var b strings.Builder
	b.Grow(len(values)*2 + 8)
	for i := 0; i < len(values); i += 2 {
		left := BrailleLevel(values[i])
		right := 0
		if i+1 < len(values) {
			right = BrailleLevel(values[i+1])
		}
		b.WriteRune(brailleGlyphs[left][right])
	}
	b.WriteString(Annotation(values))
	return b.String()
}
