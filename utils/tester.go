package utils

import (
	"fmt"
	"sync/atomic"
)

var txID = uint64(0)

// NewTxID mints a fresh 8-hex-char transaction id, monotonic per
// process. The counter-then-format idiom mirrors the teacher's
// GetTxnID, swapped from a bare uint64 to the spec's hex handle.
func NewTxID() string {
	n := atomic.AddUint64(&txID, 1)
	return fmt.Sprintf("%08x", n)
}

func Max(x int, y int) int {
	if x > y {
		return x
	}
	return y
}

func Min(x int, y int) int {
	if x < y {
		return x
	}
	return y
}
