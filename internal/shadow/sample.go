package shadow

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"
)

// sampleHash computes the FNV-1a 64 digest of
// request_id (little-endian int32) || db (UTF-8) || sample_rate (little-endian
// float64 bits) -- the exact byte layout a shadow admission decision must
// reproduce identically across processes and versions, since two servers
// disagreeing on which requests got sampled would make their comparison
// counts meaningless.
func sampleHash(requestID int32, db string, sampleRate float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(requestID))
	h.Write(buf[:4])
	h.Write([]byte(db))
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(sampleRate))
	h.Write(buf[:])
	return h.Sum64()
}

// admit decides whether one (requestID, db) pair is sampled under
// sampleRate. A rate of 0 never admits and 1 always admits regardless
// of the hash, matching the boundary behavior the admission rule
// requires exactly rather than as a side effect of hash arithmetic.
func admit(requestID int32, db string, sampleRate float64, deterministic bool) bool {
	if sampleRate <= 0 {
		return false
	}
	if sampleRate >= 1 {
		return true
	}
	if !deterministic {
		return rand.Float64() < sampleRate
	}
	h := sampleHash(requestID, db, sampleRate)
	return float64(h)/float64(math.MaxUint64) < sampleRate
}
