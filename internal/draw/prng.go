package draw

import "hash/fnv"

// LCG constants from Knuth's MMIX generator.
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// WinningIndex maps a seed string to an index in [0, n). The computation is
// pinned: FNV-1a 64 over the seed bytes, one LCG mixing step, then the high
// bits reduced modulo n. Any recomputation with the same seed and n yields
// the same index, which is what makes published draws auditable.
func WinningIndex(seed string, n int) int {
	h := fnv.New64a()
	h.Write([]byte(seed))
	v := h.Sum64()
	v = v*lcgMultiplier + lcgIncrement
	return int((v >> 33) % uint64(n))
}
