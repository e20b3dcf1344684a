// Package crc64k computes the checksum a Leaf stores over its key||value
// bytes. The original design note warns that its C++ CRC processor is a
// shared, stateful, process-global object reused across calls — a race
// waiting to happen. This package is a plain pure function instead: each
// call builds its own checksum from scratch, so concurrent readers and
// writers never share mutable CRC state.
package crc64k

import "hash/crc64"

// table is read-only once built by crc64.MakeTable and safe to share across
// goroutines; only the per-call Sum below carries mutable state.
var table = crc64.MakeTable(crc64.ECMA)

// Sum returns the CRC-64 (ECMA polynomial) checksum of key followed by
// value, matching the Leaf invariant checksum = CRC64(key || value).
func Sum(key, value []byte) uint64 {
	c := crc64.New(table)
	c.Write(key)
	c.Write(value)
	return c.Sum64()
}
