// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package postage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// BucketCount is the number of postage buckets, one per possible
// value of the first swarm.BucketDepth bits of a chunk hash.
const BucketCount = 1 << swarm.BucketDepth

// ErrBucketFull is returned when a bucket has no capacity left for
// another chunk.
var ErrBucketFull = errors.New("postage bucket is full")

// Issuer exposes the bucket accounting of one postage batch. The
// hashing pipeline reads collision counts during encryption key search
// and never writes them; implementations must be safe for concurrent
// use.
type Issuer interface {
	// BatchID identifies the batch.
	BatchID() swarm.Hash

	// BucketCollisions returns how many chunks have been stamped into
	// the bucket.
	BucketCollisions(bucket uint32) uint32

	// MinBucketCollisions returns the lowest collision count across
	// all buckets.
	MinBucketCollisions() uint32
}

// BucketIssuer is an in-memory Issuer that also hands out bucket
// indexes. Capacity per bucket is 2^(depth - swarm.BucketDepth).
type BucketIssuer struct {
	batchID  swarm.Hash
	capacity uint32

	mu     sync.Mutex
	counts []uint32
	// histogram[n] is the number of buckets holding exactly n chunks.
	// Used to advance the minimum in O(1) when the last bucket at the
	// minimum fills up.
	histogram map[uint32]int
	minimum   uint32
}

// NewBucketIssuer creates an issuer for a batch of the given depth.
// depth must be at least swarm.BucketDepth and at most
// swarm.BucketDepth+31.
func NewBucketIssuer(batchID swarm.Hash, depth uint8) (*BucketIssuer, error) {
	if depth < swarm.BucketDepth || depth > swarm.BucketDepth+31 {
		return nil, fmt.Errorf("batch depth %d out of range [%d, %d]", depth, swarm.BucketDepth, swarm.BucketDepth+31)
	}
	return &BucketIssuer{
		batchID:   batchID,
		capacity:  1 << (depth - swarm.BucketDepth),
		counts:    make([]uint32, BucketCount),
		histogram: map[uint32]int{0: BucketCount},
	}, nil
}

// BatchID returns the batch identifier.
func (i *BucketIssuer) BatchID() swarm.Hash {
	return i.batchID
}

// BucketCollisions returns the number of chunks stamped into bucket.
func (i *BucketIssuer) BucketCollisions(bucket uint32) uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[bucket%BucketCount]
}

// MinBucketCollisions returns the lowest count across all buckets.
func (i *BucketIssuer) MinBucketCollisions() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.minimum
}

// BucketCapacity returns the number of chunks each bucket can hold.
func (i *BucketIssuer) BucketCapacity() uint32 {
	return i.capacity
}

// Increment reserves the next index in bucket and returns it.
func (i *BucketIssuer) Increment(bucket uint32) (uint32, error) {
	bucket %= BucketCount

	i.mu.Lock()
	defer i.mu.Unlock()

	count := i.counts[bucket]
	if count >= i.capacity {
		return 0, fmt.Errorf("%w: bucket %d holds %d chunks", ErrBucketFull, bucket, count)
	}

	i.counts[bucket] = count + 1
	i.histogram[count]--
	if i.histogram[count] == 0 {
		delete(i.histogram, count)
		if count == i.minimum {
			i.minimum = count + 1
		}
	}
	i.histogram[count+1]++
	return count, nil
}

// Utilization returns the highest bucket count, the figure a batch's
// usable capacity is judged by.
func (i *BucketIssuer) Utilization() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	var highest uint32
	for count := range i.histogram {
		highest = max(highest, count)
	}
	return highest
}

// Observe accounts for a stamp issued before this issuer existed, so
// later Increments do not hand out its index again. Stamps are
// typically replayed from a stamp store snapshot with
// MemoryStampStore.Range.
func (i *BucketIssuer) Observe(stamp *Stamp) error {
	if stamp.BatchID != i.batchID {
		return fmt.Errorf("observing stamp of batch %s with issuer of batch %s", stamp.BatchID, i.batchID)
	}
	if stamp.Index >= i.capacity {
		return fmt.Errorf("%w: stamp index %d beyond capacity %d", ErrBucketFull, stamp.Index, i.capacity)
	}
	bucket := stamp.Bucket % BucketCount

	i.mu.Lock()
	defer i.mu.Unlock()

	count := i.counts[bucket]
	observed := stamp.Index + 1
	if observed <= count {
		return nil
	}
	i.counts[bucket] = observed
	i.histogram[count]--
	if i.histogram[count] == 0 {
		delete(i.histogram, count)
	}
	i.histogram[observed]++

	if count == i.minimum && i.histogram[count] == 0 {
		i.minimum = observed
		for held := range i.histogram {
			i.minimum = min(i.minimum, held)
		}
	}
	return nil
}
