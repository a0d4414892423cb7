// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/swarmhash/lib/clock"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// RaceStoreOptions configures a RaceStore.
type RaceStoreOptions struct {
	// Delay between starting consecutive replica attempts. Replica i
	// starts i*Delay after the Get call unless an earlier replica has
	// already answered. Zero starts every replica at once.
	Delay time.Duration

	// Clock drives the start delays. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives debug records for replica failures. Nil
	// discards them.
	Logger *slog.Logger
}

// RaceStore reads from several replicas of the same content. Reads are
// raced: attempts start in replica order with a staggered delay, the
// first chunk returned wins, and the remaining attempts are cancelled.
// Writes and deletes go to every replica.
type RaceStore struct {
	replicas []Store
	delay    time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRaceStore creates a RaceStore over replicas, tried in order.
func NewRaceStore(replicas []Store, options RaceStoreOptions) (*RaceStore, error) {
	if len(replicas) == 0 {
		return nil, errors.New("race store needs at least one replica")
	}
	if options.Delay < 0 {
		return nil, fmt.Errorf("race store delay must not be negative, got %v", options.Delay)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &RaceStore{
		replicas: replicas,
		delay:    options.Delay,
		clock:    options.Clock,
		logger:   options.Logger,
	}, nil
}

type raceResult struct {
	replica int
	chunk   *swarm.Chunk
	err     error
}

// Get implements Store. If every replica fails with ErrNotFound the
// result wraps ErrNotFound; otherwise the replica errors are joined.
func (s *RaceStore) Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so losing attempts can finish after Get has returned.
	results := make(chan raceResult, len(s.replicas))
	for index, replica := range s.replicas {
		go func() {
			if index > 0 {
				select {
				case <-s.clock.After(time.Duration(index) * s.delay):
				case <-raceCtx.Done():
					results <- raceResult{replica: index, err: raceCtx.Err()}
					return
				}
			}
			chunk, err := replica.Get(raceCtx, hash)
			results <- raceResult{replica: index, chunk: chunk, err: err}
		}()
	}

	var failures []error
	allNotFound := true
	for range s.replicas {
		result := <-results
		if result.err == nil {
			cancel()
			return result.chunk, nil
		}
		s.logger.Debug("replica get failed",
			"hash", hash.String(),
			"replica", result.replica,
			"error", result.err,
		)
		if !errors.Is(result.err, ErrNotFound) {
			allNotFound = false
		}
		failures = append(failures, fmt.Errorf("replica %d: %w", result.replica, result.err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if allNotFound {
		return nil, fmt.Errorf("getting chunk %s from %d replicas: %w", hash, len(s.replicas), ErrNotFound)
	}
	return nil, fmt.Errorf("getting chunk %s: %w", hash, errors.Join(failures...))
}

// Put implements Store. The chunk is written to every replica; the
// result is true if any replica did not already hold it.
func (s *RaceStore) Put(ctx context.Context, chunk *swarm.Chunk) (bool, error) {
	added := make([]bool, len(s.replicas))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, replica := range s.replicas {
		group.Go(func() error {
			ok, err := replica.Put(groupCtx, chunk)
			if err != nil {
				return fmt.Errorf("replica %d: %w", index, err)
			}
			added[index] = ok
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}
	for _, ok := range added {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Has implements Store. It reports true if any replica holds the chunk.
func (s *RaceStore) Has(ctx context.Context, hash swarm.Hash) (bool, error) {
	var failures []error
	for index, replica := range s.replicas {
		ok, err := replica.Has(ctx, hash)
		if err != nil {
			failures = append(failures, fmt.Errorf("replica %d: %w", index, err))
			continue
		}
		if ok {
			return true, nil
		}
	}
	if len(failures) > 0 {
		return false, errors.Join(failures...)
	}
	return false, nil
}

// Delete implements Store. It reports true if any replica held the
// chunk.
func (s *RaceStore) Delete(ctx context.Context, hash swarm.Hash) (bool, error) {
	deleted := false
	for index, replica := range s.replicas {
		ok, err := replica.Delete(ctx, hash)
		if err != nil {
			return deleted, fmt.Errorf("deleting chunk %s from replica %d: %w", hash, index, err)
		}
		deleted = deleted || ok
	}
	return deleted, nil
}
