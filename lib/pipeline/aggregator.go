// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// chunkHeader is what a parent intermediate chunk needs from a child.
// Parity children contribute their hash but not their span.
type chunkHeader struct {
	hash   swarm.Hash
	span   uint64
	key    *swarm.EncryptionKey
	parity bool
}

// AggregatorStage folds chunk hashes into a hash tree and produces the
// root reference.
//
// Chunks arrive in completion order, which under concurrent hashing is
// not stream order. A reorder buffer holds early arrivals until every
// chunk before them has been seen, so the tree levels only ever receive
// chunks in stream order.
//
// levels[0] is the first intermediate level: it collects leaf headers.
// When a level holds maxChildren headers it is wrapped into one
// intermediate chunk (span total followed by every child's hash, and
// key when recursive encryption is on), which is hashed and stored
// through the short pipeline and whose header moves up one level.
type AggregatorStage struct {
	shortPipeline          Stage
	useRecursiveEncryption bool
	maxChildren            int

	mu           sync.Mutex
	pending      map[uint64]chunkHeader
	nextExpected uint64
	levels       [][]chunkHeader
	wraps        int
}

// NewAggregatorStage creates an aggregator that hashes intermediate
// chunks through shortPipeline, normally a BMT stage feeding a store
// writer.
func NewAggregatorStage(shortPipeline Stage, useRecursiveEncryption bool) *AggregatorStage {
	maxChildren := swarm.BmtSegments
	if useRecursiveEncryption {
		// Each reference is hash‖key, so half as many fit in a chunk.
		maxChildren /= 2
	}
	return &AggregatorStage{
		shortPipeline:          shortPipeline,
		useRecursiveEncryption: useRecursiveEncryption,
		maxChildren:            maxChildren,
		pending:                make(map[uint64]chunkHeader),
	}
}

// Feed implements Stage.
func (a *AggregatorStage) Feed(ctx context.Context, args *FeedArgs) error {
	if args.Hash == nil {
		return fmt.Errorf("%w: aggregating chunk %d", ErrHashNotSet, args.NumberID)
	}
	header := chunkHeader{hash: *args.Hash, span: args.Span, key: args.Key}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, buffered := a.pending[args.NumberID]; buffered || args.NumberID < a.nextExpected {
		return fmt.Errorf("%w: chunk %d fed twice", ErrInvariant, args.NumberID)
	}
	a.pending[args.NumberID] = header

	for {
		ready, ok := a.pending[a.nextExpected]
		if !ok {
			return nil
		}
		delete(a.pending, a.nextExpected)
		a.nextExpected++
		if err := a.addToLevel(ctx, 0, ready, args.Hasher); err != nil {
			return err
		}
	}
}

// addToLevel appends header to level, wrapping the level into its
// parent when it becomes full.
func (a *AggregatorStage) addToLevel(ctx context.Context, level int, header chunkHeader, hasher *bmt.Hasher) error {
	for len(a.levels) <= level {
		a.levels = append(a.levels, nil)
	}
	a.levels[level] = append(a.levels[level], header)
	if len(a.levels[level]) < a.maxChildren {
		return nil
	}

	parent, err := a.wrapLevel(ctx, level, hasher)
	if err != nil {
		return err
	}
	return a.addToLevel(ctx, level+1, parent, hasher)
}

// wrapLevel hashes the headers of level into one intermediate chunk,
// clears the level and returns the new chunk's header.
func (a *AggregatorStage) wrapLevel(ctx context.Context, level int, hasher *bmt.Hasher) (chunkHeader, error) {
	headers := a.levels[level]

	referenceSize := swarm.HashSize
	if a.useRecursiveEncryption {
		referenceSize += swarm.EncryptionKeySize
	}
	data := make([]byte, swarm.SpanSize, swarm.SpanSize+len(headers)*referenceSize)

	var span uint64
	for _, header := range headers {
		if !header.parity {
			span += header.span
		}
		data = append(data, header.hash[:]...)
		if a.useRecursiveEncryption {
			var key swarm.EncryptionKey
			if header.key != nil {
				key = *header.key
			}
			data = append(data, key[:]...)
		}
	}
	binary.LittleEndian.PutUint64(data, span)

	args := &FeedArgs{Span: span, Data: data, Hasher: hasher}
	if err := a.shortPipeline.Feed(ctx, args); err != nil {
		return chunkHeader{}, fmt.Errorf("wrapping level %d: %w", level, err)
	}
	if args.Hash == nil {
		return chunkHeader{}, fmt.Errorf("%w: wrapping level %d", ErrHashNotSet, level)
	}

	a.levels[level] = nil
	a.wraps++
	return chunkHeader{hash: *args.Hash, span: span, key: args.Key}, nil
}

// Sum implements Stage. Levels are collapsed bottom-up: empty levels
// below the top are skipped, a lone header is carried up unchanged,
// and two or more headers are wrapped. A single-chunk stream therefore
// has the leaf's own hash as its root.
func (a *AggregatorStage) Sum(ctx context.Context, hasher *bmt.Hasher) (swarm.ChunkReference, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) > 0 {
		return swarm.ChunkReference{}, fmt.Errorf("%w: %d chunks buffered waiting for chunk %d",
			ErrInvariant, len(a.pending), a.nextExpected)
	}
	if len(a.levels) == 0 {
		return swarm.ChunkReference{}, fmt.Errorf("%w: no chunks were fed", ErrInvariant)
	}

	for level := 0; ; level++ {
		last := level == len(a.levels)-1
		switch count := len(a.levels[level]); {
		case count == 0:
			if last {
				return swarm.ChunkReference{}, fmt.Errorf("%w: last level %d is empty", ErrInvariant, level)
			}
		case count == 1 && last:
			root := a.levels[level][0]
			return swarm.ChunkReference{
				Hash:                   root.hash,
				Key:                    root.key,
				UseRecursiveEncryption: a.useRecursiveEncryption,
			}, nil
		case count == 1:
			a.levels[level+1] = append(a.levels[level+1], a.levels[level][0])
			a.levels[level] = nil
		default:
			parent, err := a.wrapLevel(ctx, level, hasher)
			if err != nil {
				return swarm.ChunkReference{}, err
			}
			if last {
				a.levels = append(a.levels, nil)
			}
			a.levels[level+1] = append(a.levels[level+1], parent)
		}
	}
}

// Wraps returns how many intermediate chunks the aggregator has built.
func (a *AggregatorStage) Wraps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wraps
}

// Levels returns the number of headers currently held at each level.
func (a *AggregatorStage) Levels() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make([]int, len(a.levels))
	for i, level := range a.levels {
		counts[i] = len(level)
	}
	return counts
}

// MissedOptimisticHashing implements Stage. The aggregator's own
// misses come from compacting intermediate chunks.
func (a *AggregatorStage) MissedOptimisticHashing() int64 {
	return a.shortPipeline.MissedOptimisticHashing()
}

// Close implements Stage.
func (a *AggregatorStage) Close() error {
	return a.shortPipeline.Close()
}
