// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// MemoryStore keeps chunks in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[swarm.Hash]*swarm.Chunk
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[swarm.Hash]*swarm.Chunk)}
}

// Put implements Store. The chunk's payload and stamp are copied.
func (s *MemoryStore) Put(ctx context.Context, chunk *swarm.Chunk) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[chunk.Hash]; exists {
		return false, nil
	}
	s.chunks[chunk.Hash] = cloneChunk(chunk)
	return true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	chunk, ok := s.chunks[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("getting chunk %s: %w", hash, ErrNotFound)
	}
	return cloneChunk(chunk), nil
}

// Has implements Store.
func (s *MemoryStore) Has(ctx context.Context, hash swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chunks[hash]
	return ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, hash swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[hash]; !ok {
		return false, nil
	}
	delete(s.chunks, hash)
	return true, nil
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cloneChunk(chunk *swarm.Chunk) *swarm.Chunk {
	clone := *chunk
	clone.Data = append([]byte(nil), chunk.Data...)
	if chunk.Stamp != nil {
		clone.Stamp = append([]byte(nil), chunk.Stamp...)
	}
	return &clone
}
