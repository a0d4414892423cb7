// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

var (
	// ErrInvariant reports an internal ordering or structural
	// violation: a chunk fed twice, a root requested before every
	// chunk arrived, or an empty final tree level.
	ErrInvariant = errors.New("pipeline invariant violated")

	// ErrPipelineConsumed is returned when a single-use feeder is
	// asked to hash a second stream.
	ErrPipelineConsumed = errors.New("pipeline already consumed")

	// ErrResourcePoolExhausted is returned when the feeder finds no
	// free chunk resource after acquiring a concurrency slot. The pool
	// is sized so this cannot happen; seeing it means a resource leaked.
	ErrResourcePoolExhausted = errors.New("chunk resource pool exhausted")

	// ErrHashNotSet is returned by a stage that needs the chunk hash
	// when no earlier stage computed it.
	ErrHashNotSet = errors.New("chunk hash not set")
)

// FeedArgs carries one chunk through the stage chain. Stages fill in
// Hash and Key and may replace Data.
type FeedArgs struct {
	// NumberID is the chunk's 0-based position in its stream.
	// Intermediate chunks built by the aggregator leave it zero.
	NumberID uint64

	// Span is the number of content bytes the chunk covers: the
	// payload length for a leaf, the subtree size for an intermediate
	// chunk.
	Span uint64

	// Data is span‖payload. A compacting BMT stage replaces it with
	// span‖encrypted payload.
	Data []byte

	// Hash is the chunk hash, nil until the BMT stage sets it.
	Hash *swarm.Hash

	// Key is the encryption key chosen by compaction, nil otherwise.
	Key *swarm.EncryptionKey

	// Hasher is scratch owned by the chunk's task for the duration of
	// the feed. Stages create their own when it is nil.
	Hasher *bmt.Hasher

	// PrevChunkLock is held by the previous chunk's task until that
	// chunk has been committed. Nil for the first chunk and for
	// chunks hashed outside a feeder.
	PrevChunkLock *semaphore.Weighted
}

// Stage is one link in the hashing chain. Each stage handles a chunk
// and hands it to the next stage it was built with.
type Stage interface {
	// Feed processes one chunk.
	Feed(ctx context.Context, args *FeedArgs) error

	// Sum finishes the stream and returns its root reference. hasher
	// is spare scratch for any chunks Sum itself must hash.
	Sum(ctx context.Context, hasher *bmt.Hasher) (swarm.ChunkReference, error)

	// MissedOptimisticHashing returns how many compaction searches in
	// this stage and the stages after it had to be redone because the
	// bucket state changed underneath them.
	MissedOptimisticHashing() int64

	// Close releases the stage and everything after it.
	Close() error
}

// sumNext forwards Sum to next, failing when the chain ends without an
// aggregator.
func sumNext(ctx context.Context, next Stage, hasher *bmt.Hasher) (swarm.ChunkReference, error) {
	if next == nil {
		return swarm.ChunkReference{}, fmt.Errorf("%w: stage chain has no aggregator", ErrInvariant)
	}
	return next.Sum(ctx, hasher)
}

func missedNext(next Stage) int64 {
	if next == nil {
		return 0
	}
	return next.MissedOptimisticHashing()
}

func closeNext(next Stage) error {
	if next == nil {
		return nil
	}
	return next.Close()
}
