// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// BMTStage computes the chunk hash. With a compact level above zero it
// also encrypts the chunk, choosing among compactLevel candidate keys
// the one whose hash lands in the least-used postage bucket.
//
// The key search is optimistic. It runs as soon as the chunk arrives,
// in parallel with earlier chunks that are still being stamped. Before
// the result is used the stage waits for the previous chunk to commit
// (PrevChunkLock) and checks that the chosen bucket's collision count
// has not moved. If it has, the search is repeated against the fresh
// state, reusing the cached attempts, and the miss is counted.
type BMTStage struct {
	compactLevel uint16
	stamper      postage.Stamper
	next         Stage
	logger       *slog.Logger

	missed atomic.Int64
}

// NewBMTStage creates a BMT stage feeding next. stamper supplies the
// bucket state for compaction and may be nil when compactLevel is 0.
func NewBMTStage(compactLevel uint16, stamper postage.Stamper, next Stage, logger *slog.Logger) (*BMTStage, error) {
	if compactLevel > 0 && stamper == nil {
		return nil, errors.New("chunk compaction requires a stamper")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BMTStage{compactLevel: compactLevel, stamper: stamper, next: next, logger: logger}, nil
}

// Feed implements Stage.
func (s *BMTStage) Feed(ctx context.Context, args *FeedArgs) error {
	if size := len(args.Data); size < swarm.SpanSize || size > swarm.ChunkWithSpanSize {
		return fmt.Errorf("%w: chunk %d is %d bytes, want %d to %d",
			swarm.ErrInvalidChunkData, args.NumberID, size, swarm.SpanSize, swarm.ChunkWithSpanSize)
	}

	hasher := args.Hasher
	if hasher == nil {
		hasher = bmt.NewHasher()
	}
	plainHash, err := hasher.HashSpanData(args.Data)
	if err != nil {
		return fmt.Errorf("hashing chunk %d: %w", args.NumberID, err)
	}

	if s.compactLevel == 0 {
		args.Hash = &plainHash
		return s.feedNext(ctx, args)
	}

	result, err := s.compact(ctx, args, newKeySearch(plainHash, args.Data, hasher))
	if err != nil {
		return err
	}
	hash := result.attempt.hash
	key := result.attempt.key
	args.Data = result.attempt.spanData
	args.Hash = &hash
	args.Key = &key
	return s.feedNext(ctx, args)
}

// compact runs the optimistic key search and, when the chunk has a
// predecessor, rechecks the result once the predecessor has committed.
func (s *BMTStage) compact(ctx context.Context, args *FeedArgs, search *keySearch) (searchResult, error) {
	result, err := search.run(s.stamper, s.compactLevel)
	if err != nil {
		return searchResult{}, fmt.Errorf("compacting chunk %d: %w", args.NumberID, err)
	}
	if args.PrevChunkLock == nil {
		return result, nil
	}

	if err := args.PrevChunkLock.Acquire(ctx, 1); err != nil {
		return searchResult{}, fmt.Errorf("waiting for chunk %d to commit: %w", args.NumberID-1, err)
	}
	defer args.PrevChunkLock.Release(1)

	if result.stamped {
		return result, nil
	}
	current := s.stamper.Issuer().BucketCollisions(result.attempt.hash.Bucket())
	if current == result.collisions {
		return result, nil
	}

	s.missed.Add(1)
	s.logger.Debug("optimistic compaction missed",
		"chunk", args.NumberID,
		"bucket", result.attempt.hash.Bucket(),
		"observed", result.collisions,
		"current", current,
	)
	result, err = search.run(s.stamper, s.compactLevel)
	if err != nil {
		return searchResult{}, fmt.Errorf("recompacting chunk %d: %w", args.NumberID, err)
	}
	return result, nil
}

func (s *BMTStage) feedNext(ctx context.Context, args *FeedArgs) error {
	if s.next == nil {
		return nil
	}
	return s.next.Feed(ctx, args)
}

// Sum implements Stage.
func (s *BMTStage) Sum(ctx context.Context, hasher *bmt.Hasher) (swarm.ChunkReference, error) {
	return sumNext(ctx, s.next, hasher)
}

// MissedOptimisticHashing implements Stage.
func (s *BMTStage) MissedOptimisticHashing() int64 {
	return s.missed.Load() + missedNext(s.next)
}

// Close implements Stage.
func (s *BMTStage) Close() error {
	return closeNext(s.next)
}
