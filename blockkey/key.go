// Package blockkey defines the data model shared by the cache, grid,
// fetcher and projector: the immutable BlockKey, the Block it names, the
// Payload a loader fills in, and the Entry that ties a key's residency
// bookkeeping to its block.
package blockkey

import "fmt"

// Key is the immutable identity of one mipmap block: a timepoint, a setup
// (data source), a mipmap level, and the linearized index of the block on
// that level's grid. Equality is structural; Hash is a precomputed 32-bit
// value used by callers that want to shard or bucket keys without
// recomputing the combination on every lookup.
type Key struct {
	Timepoint int32
	Setup     int32
	Level     int32
	Index     int64

	hash uint32
}

// NewKey builds a Key and precomputes its hash from
// ((index*maxLevels+level)*numSetups+setup)*numTimepoints+timepoint, folding
// the resulting 64-bit value into 32 bits the same way a Java hashCode would
// fold a long (high xor low word).
func NewKey(timepoint, setup, level int32, index int64, maxLevels, numSetups, numTimepoints int32) Key {
	value := ((index*int64(maxLevels)+int64(level))*int64(numSetups) + int64(setup)) * int64(numTimepoints)
	value += int64(timepoint)
	h := uint32(value) ^ uint32(uint64(value)>>32)
	return Key{
		Timepoint: timepoint,
		Setup:     setup,
		Level:     level,
		Index:     index,
		hash:      h,
	}
}

// Hash returns the precomputed hash. Equal keys built with the same
// maxLevels, numSetups and numTimepoints produce the same hash; Equal
// itself does not compare those parameters.
func (k Key) Hash() uint32 {
	return k.hash
}

// Equal reports structural equality. Key is comparable with == as well;
// Equal is provided so callers that only have a blockkey.Key (not a
// specific field layout) can compare without reflection.
func (k Key) Equal(other Key) bool {
	return k.Timepoint == other.Timepoint &&
		k.Setup == other.Setup &&
		k.Level == other.Level &&
		k.Index == other.Index
}

func (k Key) String() string {
	return fmt.Sprintf("(t=%d,s=%d,l=%d,i=%d)", k.Timepoint, k.Setup, k.Level, k.Index)
}
