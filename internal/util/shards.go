package util

import (
	"math/bits"
	"runtime"
)

// Shard count bounds for one typed store. Every (K, V) pair gets its own
// set of shards, so the ceiling stays well below a single big cache's.
const (
	minShards = 4
	maxShards = 64
)

// ReasonableShardCount returns nextPow2(2*GOMAXPROCS) clamped to
// [minShards..maxShards].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	return min(max(n, minShards), maxShards)
}

// ShardIndex maps a 64-bit hash to a shard index. Power-of-two counts take
// the mask path; other counts fall back to modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x; 0 and 1 give 1, and
// values above 1<<63 clamp to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << (64 - bits.LeadingZeros64(x-1))
}
