// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package postage models the postage-stamp accounting the hashing
// pipeline consumes: a batch issuer that counts stamped chunks per
// bucket, a store of stamps already issued, and a stamper that ties
// them together.
//
// The pipeline only reads from this package through the [Issuer],
// [StampStore] and [Stamper] interfaces. The concrete types here
// ([BucketIssuer], [MemoryStampStore], [BatchStamper]) are a complete
// in-process implementation without signatures or on-chain batch
// state, suitable for local evaluation and for tests.
package postage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// StampSize is the length of a serialized stamp: batch id (32),
// bucket and in-bucket index (4+4), timestamp in unix nanoseconds (8).
const StampSize = swarm.HashSize + 8 + 8

// Stamp proves that a chunk was paid for by a batch. The bucket is
// determined by the chunk hash; Index is the chunk's position within
// that bucket.
type Stamp struct {
	BatchID   swarm.Hash `json:"batch_id"`
	Bucket    uint32     `json:"bucket"`
	Index     uint32     `json:"index"`
	Timestamp time.Time  `json:"timestamp"`
}

// MarshalBinary lays the stamp out as:
//
//	[BatchID: 32] [Bucket: 4 BE] [Index: 4 BE] [Timestamp: 8 BE unix ns]
func (s *Stamp) MarshalBinary() ([]byte, error) {
	buffer := make([]byte, StampSize)
	copy(buffer, s.BatchID[:])
	binary.BigEndian.PutUint32(buffer[32:], s.Bucket)
	binary.BigEndian.PutUint32(buffer[36:], s.Index)
	binary.BigEndian.PutUint64(buffer[40:], uint64(s.Timestamp.UnixNano()))
	return buffer, nil
}

// UnmarshalBinary parses the layout written by MarshalBinary.
func (s *Stamp) UnmarshalBinary(data []byte) error {
	if len(data) != StampSize {
		return fmt.Errorf("stamp is %d bytes, want %d", len(data), StampSize)
	}
	copy(s.BatchID[:], data[:32])
	s.Bucket = binary.BigEndian.Uint32(data[32:])
	s.Index = binary.BigEndian.Uint32(data[36:])
	s.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(data[40:]))).UTC()
	return nil
}
