package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCPUList(t *testing.T) {
	set, ok := parseCPUList("0-3,8,10-11")
	assert.True(t, ok)
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true, 8: true, 10: true, 11: true}, set)

	set, ok = parseCPUList("")
	assert.True(t, ok)
	assert.Empty(t, set)

	for _, bad := range []string{"a", "3-1", "1-x", "1,,2"} {
		_, ok := parseCPUList(bad)
		assert.False(t, ok, bad)
	}
}
