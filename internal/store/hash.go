package store

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// GenerateDocHash truncates the 64-bit xxhash of sourceIdentifier to its top
// 32 bits, written as 8 hex characters (spec §3, §4.J). xxhash is a fast
// non-cryptographic hash, not a cryptographic digest. Collisions are accepted as rare and manually
// resolvable; spec §9 documents this as an accepted limitation rather than
// a bug.
func GenerateDocHash(sourceIdentifier string) string {
	sum := xxhash.Sum64String(sourceIdentifier)
	var buf [8]byte
	buf[0] = byte(sum >> 56)
	buf[1] = byte(sum >> 48)
	buf[2] = byte(sum >> 40)
	buf[3] = byte(sum >> 32)
	return hex.EncodeToString(buf[:4])
}
