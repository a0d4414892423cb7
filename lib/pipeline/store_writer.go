// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// StoreWriterStage stamps each hashed chunk and writes it to a store.
// In read-only mode it only forwards, which lets a pipeline compute a
// reference without persisting anything.
type StoreWriterStage struct {
	store    chunkstore.Store
	stamper  postage.Stamper
	readOnly bool
	next     Stage
}

// NewStoreWriterStage creates a store writer feeding next. store and
// stamper may be nil only in read-only mode.
func NewStoreWriterStage(store chunkstore.Store, stamper postage.Stamper, readOnly bool, next Stage) (*StoreWriterStage, error) {
	if !readOnly && (store == nil || stamper == nil) {
		return nil, errors.New("store writer needs a store and a stamper unless read-only")
	}
	return &StoreWriterStage{store: store, stamper: stamper, readOnly: readOnly, next: next}, nil
}

// Feed implements Stage.
func (s *StoreWriterStage) Feed(ctx context.Context, args *FeedArgs) error {
	if args.Hash == nil {
		return fmt.Errorf("%w: storing chunk %d", ErrHashNotSet, args.NumberID)
	}

	if !s.readOnly {
		if err := s.write(ctx, *args.Hash, args.Data); err != nil {
			return fmt.Errorf("storing chunk %d: %w", args.NumberID, err)
		}
	}

	if s.next == nil {
		return nil
	}
	return s.next.Feed(ctx, args)
}

func (s *StoreWriterStage) write(ctx context.Context, hash swarm.Hash, spanData []byte) error {
	stamp, err := s.stamper.Stamp(ctx, hash)
	if err != nil {
		return err
	}
	encodedStamp, err := stamp.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding stamp: %w", err)
	}
	chunk, err := swarm.ParseChunk(hash, spanData)
	if err != nil {
		return err
	}
	chunk.Stamp = encodedStamp
	if _, err := s.store.Put(ctx, chunk); err != nil {
		return err
	}
	return nil
}

// Sum implements Stage.
func (s *StoreWriterStage) Sum(ctx context.Context, hasher *bmt.Hasher) (swarm.ChunkReference, error) {
	return sumNext(ctx, s.next, hasher)
}

// MissedOptimisticHashing implements Stage.
func (s *StoreWriterStage) MissedOptimisticHashing() int64 {
	return missedNext(s.next)
}

// Close implements Stage.
func (s *StoreWriterStage) Close() error {
	return closeNext(s.next)
}
