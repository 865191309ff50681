package hasher

import (
	"crypto/rand"

	"github.com/cespare/xxhash/v2"
)

// OffsetIndex maps an installation identifier onto a stable index in
// [0, buckets), used to spread simultaneous installations' API calls over
// different minute slots. Not security sensitive; any uniform stable hash
// works. An empty identifier gets a random index instead.
func OffsetIndex(id string, buckets int) int {
	if buckets <= 0 {
		return 0
	}
	if id == "" {
		return randomIndex(buckets)
	}
	return int(xxhash.Sum64String(id) % uint64(buckets))
}

func randomIndex(buckets int) int {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		return 0
	}
	return int(b[0]) % buckets
}
