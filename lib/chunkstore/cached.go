// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// CachedStore keeps the most recently read or written chunks in an
// LRU cache in front of a backing Store. Chunks are immutable, so a
// cached chunk never goes stale; only Delete invalidates.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[swarm.Hash, *swarm.Chunk]
}

// NewCachedStore wraps backing with a cache of up to size chunks.
func NewCachedStore(backing Store, size int) (*CachedStore, error) {
	cache, err := lru.New[swarm.Hash, *swarm.Chunk](size)
	if err != nil {
		return nil, fmt.Errorf("creating chunk cache: %w", err)
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

// Put implements Store. Successful writes populate the cache.
func (s *CachedStore) Put(ctx context.Context, chunk *swarm.Chunk) (bool, error) {
	added, err := s.backing.Put(ctx, chunk)
	if err != nil {
		return false, err
	}
	s.cache.Add(chunk.Hash, cloneChunk(chunk))
	return added, nil
}

// Get implements Store.
func (s *CachedStore) Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error) {
	if chunk, ok := s.cache.Get(hash); ok {
		return cloneChunk(chunk), nil
	}
	chunk, err := s.backing.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.cache.Add(hash, cloneChunk(chunk))
	return chunk, nil
}

// Has implements Store.
func (s *CachedStore) Has(ctx context.Context, hash swarm.Hash) (bool, error) {
	if s.cache.Contains(hash) {
		return true, nil
	}
	return s.backing.Has(ctx, hash)
}

// Delete implements Store.
func (s *CachedStore) Delete(ctx context.Context, hash swarm.Hash) (bool, error) {
	s.cache.Remove(hash)
	return s.backing.Delete(ctx, hash)
}

// CachedLen returns the number of chunks currently cached.
func (s *CachedStore) CachedLen() int {
	return s.cache.Len()
}
