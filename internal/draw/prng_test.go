package draw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinningIndexDeterministic(t *testing.T) {
	for _, seed := range []string{"a", "seed-001", "3b1f9c0d2a84e6f7"} {
		first := WinningIndex(seed, 1000)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, WinningIndex(seed, 1000), "seed %q must always map to the same index", seed)
		}
	}
}

func TestWinningIndexInRange(t *testing.T) {
	for n := 1; n <= 128; n++ {
		for i := 0; i < 50; i++ {
			seed := fmt.Sprintf("seed-%d-%d", n, i)
			index := WinningIndex(seed, n)
			assert.GreaterOrEqual(t, index, 0)
			assert.Less(t, index, n)
		}
	}
}

func TestWinningIndexSingleTicket(t *testing.T) {
	assert.Equal(t, 0, WinningIndex("anything", 1))
	assert.Equal(t, 0, WinningIndex("", 1))
}

func TestWinningIndexSeedSensitivity(t *testing.T) {
	// Not a randomness proof, just a sanity check that nearby seeds don't
	// collapse onto one index.
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[WinningIndex(fmt.Sprintf("seed-%d", i), 10000)] = true
	}
	assert.Greater(t, len(seen), 150)
}
