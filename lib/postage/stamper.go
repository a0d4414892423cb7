// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package postage

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/clock"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Stamper issues stamps for chunk hashes and exposes the accounting
// state the encryption key search reads.
type Stamper interface {
	// Stamp returns a stamp for hash, reusing one already issued by
	// the same batch.
	Stamp(ctx context.Context, hash swarm.Hash) (*Stamp, error)

	// Issuer returns the batch's bucket accounting.
	Issuer() Issuer

	// StampStore returns the store of stamps already issued.
	StampStore() StampStore
}

// BatchStamper is the in-process Stamper: it increments a
// BucketIssuer and records stamps in a StampStore.
type BatchStamper struct {
	issuer *BucketIssuer
	store  StampStore
	clock  clock.Clock

	// mu makes "look up existing stamp, else increment the bucket"
	// atomic, so a hash stamped concurrently twice consumes one slot.
	mu sync.Mutex
}

// NewBatchStamper creates a stamper over issuer and store. Timestamps
// come from clk.
func NewBatchStamper(issuer *BucketIssuer, store StampStore, clk clock.Clock) *BatchStamper {
	return &BatchStamper{issuer: issuer, store: store, clock: clk}
}

// Stamp implements Stamper.
func (s *BatchStamper) Stamp(ctx context.Context, hash swarm.Hash) (*Stamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.store.Get(s.issuer.BatchID(), hash); ok {
		return existing, nil
	}

	bucket := hash.Bucket()
	index, err := s.issuer.Increment(bucket)
	if err != nil {
		return nil, fmt.Errorf("stamping chunk %s: %w", hash, err)
	}

	stamp := &Stamp{
		BatchID:   s.issuer.BatchID(),
		Bucket:    bucket,
		Index:     index,
		Timestamp: s.clock.Now().UTC(),
	}
	s.store.Put(hash, stamp)
	return stamp, nil
}

// Issuer implements Stamper.
func (s *BatchStamper) Issuer() Issuer {
	return s.issuer
}

// StampStore implements Stamper.
func (s *BatchStamper) StampStore() StampStore {
	return s.store
}
