// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/postage"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Options configures a hashing pipeline.
type Options struct {
	// Store receives every chunk. Required unless ReadOnly.
	Store chunkstore.Store

	// Stamper stamps stored chunks and supplies bucket state for
	// compaction. Required unless ReadOnly with CompactLevel 0.
	Stamper postage.Stamper

	// Concurrency bounds the number of chunk tasks. Zero or less uses
	// GOMAXPROCS.
	Concurrency int

	// CompactLevel is the number of candidate encryption keys tried per
	// chunk. Zero disables compaction and encryption.
	CompactLevel uint16

	// Encrypt requests whole-file encryption with random keys. Not
	// supported; New returns swarm.ErrNotImplemented.
	Encrypt bool

	// Redundancy selects erasure coding. Only swarm.RedundancyNone is
	// supported.
	Redundancy swarm.RedundancyLevel

	// ReadOnly computes the reference without stamping or storing.
	ReadOnly bool

	// Logger receives debug records. Nil discards them.
	Logger *slog.Logger

	// Metrics, if set, is updated after every hashed stream.
	Metrics *Metrics
}

// Pipeline hashes one stream: feeder → BMT stage → store writer →
// aggregator, where the aggregator hashes intermediate chunks through
// its own BMT stage → store writer.
type Pipeline struct {
	feeder     *ChunkFeeder
	aggregator *AggregatorStage
}

// New builds a single-use pipeline.
func New(options Options) (*Pipeline, error) {
	if options.Encrypt {
		return nil, fmt.Errorf("encrypted pipeline: %w", swarm.ErrNotImplemented)
	}
	if options.Redundancy != swarm.RedundancyNone {
		return nil, fmt.Errorf("redundancy level %s: %w", options.Redundancy, swarm.ErrNotImplemented)
	}
	if !options.ReadOnly && options.Store == nil {
		return nil, errors.New("pipeline needs a store unless read-only")
	}
	if options.Stamper == nil && (!options.ReadOnly || options.CompactLevel > 0) {
		return nil, errors.New("pipeline needs a stamper unless read-only without compaction")
	}

	stage, aggregator, err := buildChain(options)
	if err != nil {
		return nil, err
	}
	feeder := NewChunkFeeder(stage, options.Concurrency, options.Logger)
	feeder.metrics = options.Metrics
	return &Pipeline{feeder: feeder, aggregator: aggregator}, nil
}

// buildChain assembles the stages back to front.
func buildChain(options Options) (Stage, *AggregatorStage, error) {
	shortStore, err := NewStoreWriterStage(options.Store, options.Stamper, options.ReadOnly, nil)
	if err != nil {
		return nil, nil, err
	}
	shortBMT, err := NewBMTStage(options.CompactLevel, options.Stamper, shortStore, options.Logger)
	if err != nil {
		return nil, nil, err
	}
	aggregator := NewAggregatorStage(shortBMT, options.CompactLevel > 0)

	store, err := NewStoreWriterStage(options.Store, options.Stamper, options.ReadOnly, aggregator)
	if err != nil {
		return nil, nil, err
	}
	bmtStage, err := NewBMTStage(options.CompactLevel, options.Stamper, store, options.Logger)
	if err != nil {
		return nil, nil, err
	}
	return bmtStage, aggregator, nil
}

// HashReader hashes the stream read from r. See ChunkFeeder.HashReader.
func (p *Pipeline) HashReader(ctx context.Context, r io.Reader) (swarm.ChunkReference, error) {
	return p.feeder.HashReader(ctx, r)
}

// HashBytes hashes data.
func (p *Pipeline) HashBytes(ctx context.Context, data []byte) (swarm.ChunkReference, error) {
	return p.feeder.HashBytes(ctx, data)
}

// PeakConcurrency returns the largest number of chunk tasks that ran
// at once.
func (p *Pipeline) PeakConcurrency() int64 {
	return p.feeder.PeakConcurrency()
}

// MissedOptimisticHashing returns the number of compaction searches
// that were redone.
func (p *Pipeline) MissedOptimisticHashing() int64 {
	return p.feeder.MissedOptimisticHashing()
}

// IntermediateChunks returns the number of intermediate tree chunks
// built.
func (p *Pipeline) IntermediateChunks() int {
	return p.aggregator.Wraps()
}

// Close releases the pipeline.
func (p *Pipeline) Close() error {
	return p.feeder.Close()
}

// HashBytes hashes data with a fresh pipeline built from options.
func HashBytes(ctx context.Context, options Options, data []byte) (swarm.ChunkReference, error) {
	p, err := New(options)
	if err != nil {
		return swarm.ChunkReference{}, err
	}
	defer p.Close()
	return p.HashBytes(ctx, data)
}
