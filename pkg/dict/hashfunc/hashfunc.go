// Package hashfunc provides the process-wide hash seed and seeded hash
// functions a dict.Type can install as its Hash hook (spec §6 "Hash
// seed"); a Type that leaves Hash nil does not use them, pkg/dict then
// falls back to its own identity/FNV hash. The original uses
// SipHash over a 16-byte seed; we fold the same 16-byte seed into
// cespare/xxhash/v2's seeded Sum64, which gives the same "settable once
// at startup" process-wide-seed property with a real, well-tested
// high-throughput hash.
package hashfunc

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const seedLen = 16

var (
	mu      sync.Mutex
	seed    [seedLen]byte
	seedSet bool
)

// SetSeed installs the process-wide hash seed. Like the original's
// dictSetHashFunctionSeed, this is meant to be called once, early, before
// any Dictionary using the default hash hook is created. Calling it again
// after entries have been hashed with the old seed invalidates bucket
// placement for any such Dictionary; that is the caller's problem, exactly
// as in the original.
func SetSeed(s [seedLen]byte) {
	mu.Lock()
	defer mu.Unlock()
	seed = s
	seedSet = true
}

// Seed returns the current process-wide seed, installing the fixed
// built-in defaultSeed the first time it's read if SetSeed was never
// called (the original falls back to a build-time default seed).
func Seed() [seedLen]byte {
	mu.Lock()
	defer mu.Unlock()
	if !seedSet {
		seed = defaultSeed
		seedSet = true
	}
	return seed
}

var defaultSeed = [seedLen]byte{
	0xd8, 0x34, 0x19, 0xdc, 0x6d, 0x1f, 0xa9, 0x0d,
	0x1e, 0xe6, 0x97, 0x9f, 0xc3, 0x01, 0xfe, 0x83,
}

func seededDigest() *xxhash.Digest {
	s := Seed()
	// xxhash.NewWithSeed wants a uint64; fold the 16-byte seed down by
	// XOR-ing its two halves, same trick the original uses to narrow its
	// 128-bit siphash key material down to hash-table placement bits.
	var lo, hi uint64
	for i := 0; i < 8; i++ {
		lo |= uint64(s[i]) << (8 * i)
		hi |= uint64(s[i+8]) << (8 * i)
	}
	return xxhash.NewWithSeed(lo ^ hi)
}

// Sum64 is the seeded hash for byte/string keys, for use as a Type.Hash:
// GenHashFunction in spec §6.
func Sum64(key []byte) uint64 {
	d := seededDigest()
	_, _ = d.Write(key)
	return d.Sum64()
}

// Sum64String is Sum64 without forcing the caller to convert to []byte.
func Sum64String(key string) uint64 {
	d := seededDigest()
	_, _ = d.WriteString(key)
	return d.Sum64()
}

// Sum64CaseInsensitive is the case-insensitive variant spec §6 calls out
// (GenCaseHashFunction in the original, used by keyspaces with
// case-folded lookups).
func Sum64CaseInsensitive(key string) uint64 {
	return Sum64String(strings.ToLower(key))
}
