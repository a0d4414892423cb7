// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkstore holds chunks keyed by their content hash.
//
// [Store] is the contract the hashing pipeline and the manifest reader
// depend on. This package provides four implementations that compose:
//
//   - [MemoryStore]: a map, for tests and read-only evaluation.
//   - [FileStore]: sharded files under a root directory, written via
//     atomic rename, CBOR-encoded with a BLAKE3 checksum and optional
//     LZ4 or zstd compression.
//   - [CachedStore]: an LRU read cache in front of another Store.
//   - [RaceStore]: several replicas raced with staggered start delays;
//     the first replica to return a chunk wins and the rest are
//     cancelled.
//
// Every implementation is safe for concurrent use.
package chunkstore

import (
	"context"
	"errors"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// ErrNotFound is returned by Get when no chunk has the requested hash.
var ErrNotFound = errors.New("chunk not found")

// Store is a content-addressed chunk store.
type Store interface {
	// Put stores chunk. It returns false if a chunk with the same hash
	// was already present, in which case the store is unchanged.
	Put(ctx context.Context, chunk *swarm.Chunk) (bool, error)

	// Get returns the chunk with the given hash, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error)

	// Has reports whether a chunk with the given hash is stored.
	Has(ctx context.Context, hash swarm.Hash) (bool, error)

	// Delete removes the chunk. It returns false if it was not stored.
	Delete(ctx context.Context, hash swarm.Hash) (bool, error)
}

// TryGet is Get with absence folded into the result: a missing chunk
// or a cancelled context yields (nil, false, nil). Any other failure
// is returned as an error.
func TryGet(ctx context.Context, store Store, hash swarm.Hash) (*swarm.Chunk, bool, error) {
	chunk, err := store.Get(ctx, hash)
	switch {
	case err == nil:
		return chunk, true, nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, false, nil
	default:
		return nil, false, err
	}
}
