// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package swarm defines the shared primitives of the chunking and
// hashing pipeline: content hashes, chunks, chunk references, span
// encoding, chunk encryption keys, and postage bucket identifiers.
//
// A chunk is the unit of storage: an 8-byte little-endian span
// (the number of content bytes the chunk represents, which for
// intermediate tree chunks is the size of the whole subtree) followed
// by at most [ChunkDataSize] bytes of payload. The chunk's identity is
// the BMT hash of span‖payload, computed by lib/bmt.
//
// All constants in this package are protocol constants. Changing any
// of them changes every hash produced by the pipeline and breaks
// interoperability with data already stored on the network.
//
// This package has no dependencies outside the standard library so
// that every other package (hasher, stores, pipeline, manifest) can
// import it without cycles.
package swarm
