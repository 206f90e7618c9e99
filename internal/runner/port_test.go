package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocatePortStaysWithinRange(t *testing.T) {
	for i := 0; i < portRange*3; i++ {
		p := allocatePort()
		assert.GreaterOrEqual(t, p, portBase)
		assert.Less(t, p, portBase+portRange)
	}
}

func TestAllocatePortAdvances(t *testing.T) {
	a := allocatePort()
	b := allocatePort()
	assert.NotEqual(t, a, b, "consecutive allocations should not repeat until the range wraps")
}
