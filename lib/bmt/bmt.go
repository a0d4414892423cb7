// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bmt computes the binary Merkle tree (BMT) hash of a chunk.
//
// The payload is zero-padded to swarm.ChunkDataSize bytes and split
// into swarm.BmtSegments 32-byte segments. Adjacent segments are
// concatenated and hashed with Keccak-256, level by level, until one
// 32-byte root remains. The chunk hash is Keccak-256(span ‖ root), so
// two chunks with identical payloads but different spans (a leaf and
// an intermediate chunk, say) never share a hash.
package bmt

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Hasher computes BMT chunk hashes. It owns a chunk-sized scratch
// buffer and a Keccak state that are reused between calls, so a
// Hasher is not safe for concurrent use. The pipeline keeps one per
// concurrent chunk task.
type Hasher struct {
	keccak  hash.Hash
	tree    [swarm.ChunkDataSize]byte
	scratch [swarm.HashSize]byte
}

// NewHasher returns a Hasher ready for use.
func NewHasher() *Hasher {
	return &Hasher{keccak: sha3.NewLegacyKeccak256()}
}

// Hash returns the chunk hash of span‖data. span must be exactly
// swarm.SpanSize bytes and data at most swarm.ChunkDataSize bytes.
func (h *Hasher) Hash(span, data []byte) (swarm.Hash, error) {
	if len(span) != swarm.SpanSize {
		return swarm.Hash{}, fmt.Errorf("%w: span is %d bytes, want %d", swarm.ErrInvalidChunkData, len(span), swarm.SpanSize)
	}
	if len(data) > swarm.ChunkDataSize {
		return swarm.Hash{}, fmt.Errorf("%w: payload is %d bytes, max %d", swarm.ErrInvalidChunkData, len(data), swarm.ChunkDataSize)
	}

	copy(h.tree[:], data)
	clear(h.tree[len(data):])

	// Fold the tree in place. Node i of the next level is written to
	// tree[32i:32i+32] after its children tree[64i:64i+64] have been
	// read; every later node reads strictly to the right of that.
	for width := swarm.BmtSegments; width > 1; width /= 2 {
		for i := 0; i < width/2; i++ {
			h.keccak.Reset()
			h.keccak.Write(h.tree[i*2*swarm.SegmentSize : (i+1)*2*swarm.SegmentSize])
			h.keccak.Sum(h.scratch[:0])
			copy(h.tree[i*swarm.SegmentSize:], h.scratch[:])
		}
	}

	h.keccak.Reset()
	h.keccak.Write(span)
	h.keccak.Write(h.tree[:swarm.SegmentSize])
	var result swarm.Hash
	h.keccak.Sum(result[:0])
	return result, nil
}

// HashSpanData splits spanData into span and payload and hashes it.
func (h *Hasher) HashSpanData(spanData []byte) (swarm.Hash, error) {
	if len(spanData) < swarm.SpanSize {
		return swarm.Hash{}, fmt.Errorf("%w: %d bytes is shorter than the span", swarm.ErrInvalidChunkData, len(spanData))
	}
	return h.Hash(spanData[:swarm.SpanSize], spanData[swarm.SpanSize:])
}

// Keccak256 returns the single-pass Keccak-256 digest of the
// concatenated inputs. Used for encryption key derivation and the
// manifest version marker, where no tree structure is wanted.
func Keccak256(data ...[]byte) swarm.Hash {
	keccak := sha3.NewLegacyKeccak256()
	for _, d := range data {
		keccak.Write(d)
	}
	var result swarm.Hash
	keccak.Sum(result[:0])
	return result
}
