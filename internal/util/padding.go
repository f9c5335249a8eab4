// Package util contains internal helpers for the sharded typed stores:
// key hashing, shard selection and cache-line padding.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize covers the common 64-byte line; runtime's own constant is unexported.
const CacheLineSize = 64

// CacheLinePad separates a shard's lock and map from its counters.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedAtomicUint64 is an atomic counter that owns a whole cache line, so
// per-shard creation and eviction counters do not contend.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

var _ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
