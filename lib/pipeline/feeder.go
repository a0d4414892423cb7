// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// chunkResource is the per-task scratch: a BMT hasher and the lock the
// next chunk waits on before committing its compaction result.
type chunkResource struct {
	hasher *bmt.Hasher
	lock   *semaphore.Weighted
}

// ChunkFeeder splits a stream into chunks and runs each chunk through
// the stage chain as its own task.
//
// At most concurrency tasks run at once. Each task checks out a
// chunkResource from a pool of 2×concurrency and locks it for its whole
// lifetime; the next chunk receives that lock as PrevChunkLock. A task
// returns its resource to the pool only after releasing the lock, and
// the successor still has to acquire that lock, so the resource must
// not be handed to a new task before then. With the pool twice the
// concurrency, at least concurrency resources sit ahead of a returned
// one in the queue, and no more than concurrency-1 new tasks can start
// before the successor commits.
type ChunkFeeder struct {
	next        Stage
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics

	consumed atomic.Bool
	running  atomic.Int64
	peak     atomic.Int64
	chunks   atomic.Int64
}

// NewChunkFeeder creates a feeder driving next. A concurrency of zero
// or less uses GOMAXPROCS.
func NewChunkFeeder(next Stage, concurrency int, logger *slog.Logger) *ChunkFeeder {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChunkFeeder{next: next, concurrency: concurrency, logger: logger}
}

// HashBytes hashes data. See HashReader.
func (f *ChunkFeeder) HashBytes(ctx context.Context, data []byte) (swarm.ChunkReference, error) {
	return f.HashReader(ctx, bytes.NewReader(data))
}

// HashReader reads r to the end, feeds every chunk through the stage
// chain and returns the root reference. An empty stream is hashed as
// one empty chunk. A feeder hashes exactly one stream; later calls
// return ErrPipelineConsumed.
func (f *ChunkFeeder) HashReader(ctx context.Context, r io.Reader) (swarm.ChunkReference, error) {
	if !f.consumed.CompareAndSwap(false, true) {
		return swarm.ChunkReference{}, ErrPipelineConsumed
	}

	slots := semaphore.NewWeighted(int64(f.concurrency))
	pool := make(chan *chunkResource, 2*f.concurrency)
	for range cap(pool) {
		pool <- &chunkResource{hasher: bmt.NewHasher(), lock: semaphore.NewWeighted(1)}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	feedErr := f.feedChunks(groupCtx, r, group, slots, pool)
	if err := group.Wait(); err != nil {
		return swarm.ChunkReference{}, err
	}
	if feedErr != nil {
		return swarm.ChunkReference{}, feedErr
	}

	spare, err := dequeue(pool)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	defer func() { pool <- spare }()

	reference, err := f.next.Sum(ctx, spare.hasher)
	if err != nil {
		return swarm.ChunkReference{}, fmt.Errorf("computing root: %w", err)
	}

	missed := f.next.MissedOptimisticHashing()
	if f.metrics != nil {
		f.metrics.observeStream(f.chunks.Load(), missed)
	}
	f.logger.Debug("hashed stream",
		"root", reference.Hash.String(),
		"chunks", f.chunks.Load(),
		"peak_concurrency", f.peak.Load(),
		"missed_optimistic_hashing", missed,
	)
	return reference, nil
}

// feedChunks reads r and starts one task per chunk. It returns the
// first read or scheduling error; task errors surface from group.Wait.
func (f *ChunkFeeder) feedChunks(ctx context.Context, r io.Reader, group *errgroup.Group, slots *semaphore.Weighted, pool chan *chunkResource) error {
	var (
		previousLock *semaphore.Weighted
		numberID     uint64
	)
	for {
		buffer := make([]byte, swarm.SpanSize+swarm.ChunkDataSize)
		size, err := io.ReadFull(r, buffer[swarm.SpanSize:])
		last := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if numberID > 0 {
				return nil
			}
			last = true
		case errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		default:
			return fmt.Errorf("reading chunk %d: %w", numberID, err)
		}
		copy(buffer, swarm.SpanToBytes(uint64(size)))

		if err := slots.Acquire(ctx, 1); err != nil {
			return err
		}
		resource, err := dequeue(pool)
		if err != nil {
			slots.Release(1)
			return err
		}
		if err := resource.lock.Acquire(ctx, 1); err != nil {
			pool <- resource
			slots.Release(1)
			return err
		}

		args := &FeedArgs{
			NumberID:      numberID,
			Span:          uint64(size),
			Data:          buffer[:swarm.SpanSize+size],
			Hasher:        resource.hasher,
			PrevChunkLock: previousLock,
		}
		previousLock = resource.lock

		group.Go(func() error {
			f.taskStarted()
			defer func() {
				f.running.Add(-1)
				resource.lock.Release(1)
				pool <- resource
				slots.Release(1)
			}()
			if err := f.next.Feed(ctx, args); err != nil {
				return fmt.Errorf("feeding chunk %d: %w", args.NumberID, err)
			}
			return nil
		})
		f.chunks.Add(1)
		numberID++

		if last {
			return nil
		}
	}
}

// dequeue takes a resource without blocking.
func dequeue(pool chan *chunkResource) (*chunkResource, error) {
	select {
	case resource := <-pool:
		return resource, nil
	default:
		return nil, ErrResourcePoolExhausted
	}
}

func (f *ChunkFeeder) taskStarted() {
	running := f.running.Add(1)
	for {
		peak := f.peak.Load()
		if running <= peak || f.peak.CompareAndSwap(peak, running) {
			return
		}
	}
}

// PeakConcurrency returns the largest number of chunk tasks that ran
// at the same time.
func (f *ChunkFeeder) PeakConcurrency() int64 {
	return f.peak.Load()
}

// MissedOptimisticHashing returns the number of compaction searches
// that had to be redone.
func (f *ChunkFeeder) MissedOptimisticHashing() int64 {
	return f.next.MissedOptimisticHashing()
}

// Close releases the stage chain.
func (f *ChunkFeeder) Close() error {
	return f.next.Close()
}
