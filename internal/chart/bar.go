package chart

import (
	"math"
	"strings"
)

const barLevels = 8

var barGlyphs = [barLevels + 1]rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// BarIndex maps a percentage to its glyph index in 0..8. Zero is the only
// value drawn empty; any positive value shows at least the lowest bar.
func BarIndex(v float64) int {
	v = clamp(v)
	if v == 0 {
		return 0
	}
	return min(barLevels, int(math.Ceil(v*barLevels/100)))
}

// EncodeBar draws one bar glyph per value.
func EncodeBar(values []float64) string {
	var b strings.Builder
	b.Grow(len(values)*3 + 8)
	for _, v := range values {
		b.WriteRune(barGlyphs[BarIndex(v)])
	}
	b.WriteString(Annotation(values))
	return b.String()
}
