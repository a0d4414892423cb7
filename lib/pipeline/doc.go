// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline turns a byte stream into a Swarm hash tree.
//
// A stream is cut into chunks of up to [swarm.ChunkDataSize] bytes by
// a [ChunkFeeder] and each chunk runs through a chain of [Stage]s as
// an independent task:
//
//	ChunkFeeder → BMTStage → StoreWriterStage → AggregatorStage
//	                                                 │
//	                      BMTStage → StoreWriterStage (intermediate chunks)
//
// The [BMTStage] hashes the chunk and, when compaction is enabled,
// picks an encryption key that puts the chunk in a lightly used postage
// bucket. The [StoreWriterStage] stamps and persists it. The
// [AggregatorStage] restores stream order and folds chunk hashes into
// intermediate chunks, 128 references each (64 when references carry
// keys), until a single root remains.
//
// [New] assembles the whole chain from [Options]; [Joiner] reads a
// reference back into bytes.
package pipeline
