// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// compactionAttempt is one candidate encryption of a chunk.
type compactionAttempt struct {
	index    uint16
	key      swarm.EncryptionKey
	spanData []byte
	hash     swarm.Hash
}

// searchResult is the outcome of one pass over the candidate keys.
// collisions is the bucket count observed for the chosen attempt;
// the commit recheck compares against it.
type searchResult struct {
	attempt    *compactionAttempt
	collisions uint32
	stamped    bool
}

// keySearch looks for the encryption key whose chunk hash lands in the
// least-used postage bucket. Attempts are cached, so a second pass
// after a failed recheck only re-reads bucket state.
type keySearch struct {
	plainHash swarm.Hash
	spanData  []byte
	hasher    *bmt.Hasher
	attempts  map[uint16]*compactionAttempt

	// computed counts attempts that were actually encrypted and hashed.
	computed int
}

func newKeySearch(plainHash swarm.Hash, spanData []byte, hasher *bmt.Hasher) *keySearch {
	return &keySearch{
		plainHash: plainHash,
		spanData:  spanData,
		hasher:    hasher,
		attempts:  make(map[uint16]*compactionAttempt),
	}
}

// deriveKey returns keccak256(plainHash with its last two bytes
// replaced by index, big endian).
func deriveKey(plainHash swarm.Hash, index uint16) swarm.EncryptionKey {
	seed := plainHash
	binary.BigEndian.PutUint16(seed[swarm.HashSize-2:], index)
	return swarm.EncryptionKey(bmt.Keccak256(seed[:]))
}

// attempt returns the cached attempt for index, computing it on first
// use. Only the payload is encrypted; the span stays in the clear.
func (s *keySearch) attempt(index uint16) (*compactionAttempt, error) {
	if cached, ok := s.attempts[index]; ok {
		return cached, nil
	}

	key := deriveKey(s.plainHash, index)
	spanData := make([]byte, len(s.spanData))
	copy(spanData, s.spanData[:swarm.SpanSize])
	key.Transform(spanData[swarm.SpanSize:], s.spanData[swarm.SpanSize:])

	hash, err := s.hasher.HashSpanData(spanData)
	if err != nil {
		return nil, fmt.Errorf("hashing compaction attempt %d: %w", index, err)
	}

	attempt := &compactionAttempt{index: index, key: key, spanData: spanData, hash: hash}
	s.attempts[index] = attempt
	s.computed++
	return attempt, nil
}

// run tries up to level candidate keys. It stops at the first attempt
// whose hash the batch has already stamped, or whose bucket sits at the
// batch's minimum collision count. Otherwise it returns the attempt
// with the fewest collisions, earliest first on ties.
func (s *keySearch) run(stamper postage.Stamper, level uint16) (searchResult, error) {
	issuer := stamper.Issuer()
	stamps := stamper.StampStore()
	batchID := issuer.BatchID()
	minimum := issuer.MinBucketCollisions()

	var best searchResult
	for i := range int(level) {
		attempt, err := s.attempt(uint16(i))
		if err != nil {
			return searchResult{}, err
		}
		if _, stamped := stamps.Get(batchID, attempt.hash); stamped {
			return searchResult{attempt: attempt, stamped: true}, nil
		}
		collisions := issuer.BucketCollisions(attempt.hash.Bucket())
		if collisions == minimum {
			return searchResult{attempt: attempt, collisions: collisions}, nil
		}
		if i == 0 || collisions < best.collisions {
			best = searchResult{attempt: attempt, collisions: collisions}
		}
	}
	return best, nil
}
