// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package postage

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/codec"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// StampStore records which chunks already carry a stamp from which
// batch. A chunk stamped once by a batch costs nothing to stamp again,
// which is why the encryption key search treats "already stamped" as
// the best possible outcome.
type StampStore interface {
	// Get returns the stamp batchID issued for hash, if any.
	Get(batchID, hash swarm.Hash) (*Stamp, bool)

	// Put records stamp as issued for hash.
	Put(hash swarm.Hash, stamp *Stamp)
}

type stampKey struct {
	batchID swarm.Hash
	hash    swarm.Hash
}

// MemoryStampStore is a StampStore held in a map. It is safe for
// concurrent use.
type MemoryStampStore struct {
	mu     sync.RWMutex
	stamps map[stampKey]Stamp
}

// NewMemoryStampStore returns an empty store.
func NewMemoryStampStore() *MemoryStampStore {
	return &MemoryStampStore{stamps: make(map[stampKey]Stamp)}
}

// Get implements StampStore.
func (s *MemoryStampStore) Get(batchID, hash swarm.Hash) (*Stamp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stamp, ok := s.stamps[stampKey{batchID, hash}]
	if !ok {
		return nil, false
	}
	return &stamp, true
}

// Put implements StampStore.
func (s *MemoryStampStore) Put(hash swarm.Hash, stamp *Stamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamps[stampKey{stamp.BatchID, hash}] = *stamp
}

// Len returns the number of recorded stamps.
func (s *MemoryStampStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stamps)
}

// Range calls fn for every recorded stamp until fn returns false.
// fn must not call back into the store.
func (s *MemoryStampStore) Range(fn func(hash swarm.Hash, stamp *Stamp) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, stamp := range s.stamps {
		if !fn(key.hash, &stamp) {
			return
		}
	}
}

// snapshotEntry is one stamp in a CBOR snapshot.
type snapshotEntry struct {
	Hash  swarm.Hash `cbor:"hash"`
	Stamp []byte     `cbor:"stamp"`
}

// Save writes every stamp to w as a CBOR array ordered by chunk hash,
// so two stores with the same content produce identical snapshots.
func (s *MemoryStampStore) Save(w io.Writer) error {
	s.mu.RLock()
	entries := make([]snapshotEntry, 0, len(s.stamps))
	for key, stamp := range s.stamps {
		encoded, err := stamp.MarshalBinary()
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("encoding stamp for %s: %w", key.hash, err)
		}
		entries = append(entries, snapshotEntry{Hash: key.hash, Stamp: encoded})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hash != entries[j].Hash {
			return entries[i].Hash.String() < entries[j].Hash.String()
		}
		return string(entries[i].Stamp) < string(entries[j].Stamp)
	})

	if err := codec.NewEncoder(w).Encode(entries); err != nil {
		return fmt.Errorf("writing stamp snapshot: %w", err)
	}
	return nil
}

// Load adds every stamp in a snapshot written by Save.
func (s *MemoryStampStore) Load(r io.Reader) error {
	var entries []snapshotEntry
	if err := codec.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("reading stamp snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range entries {
		var stamp Stamp
		if err := stamp.UnmarshalBinary(entry.Stamp); err != nil {
			return fmt.Errorf("decoding snapshot entry %d: %w", i, err)
		}
		s.stamps[stampKey{stamp.BatchID, entry.Hash}] = stamp
	}
	return nil
}
