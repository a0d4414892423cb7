// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Protocol sizes.
const (
	// HashSize is the byte length of every content hash.
	HashSize = 32

	// SpanSize is the byte length of the little-endian span prefix.
	SpanSize = 8

	// SegmentSize is the byte length of a BMT leaf segment. Equal to
	// HashSize so that two child hashes fill exactly one parent input.
	SegmentSize = 32

	// ChunkDataSize is the maximum payload length of a chunk.
	ChunkDataSize = 4096

	// ChunkWithSpanSize is the maximum length of span‖payload.
	ChunkWithSpanSize = SpanSize + ChunkDataSize

	// BmtSegments is the number of leaf segments in the BMT of one
	// chunk, and also the number of plain child references that fit
	// in one intermediate chunk.
	BmtSegments = ChunkDataSize / SegmentSize

	// BucketDepth is the number of leading hash bits that select a
	// postage bucket.
	BucketDepth = 16
)

// Hash is a 32-byte content hash. Chunk hashes, manifest node hashes
// and root references all share this type.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash. Manifest directory entries carry it
// to mark "no content".
var ZeroHash Hash

// IsZero reports whether every byte of the hash is zero.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bucket returns the postage bucket the hash falls into: the first
// BucketDepth bits of the hash, read big endian.
func (h Hash) Bucket() uint32 {
	return uint32(binary.BigEndian.Uint16(h[:2])) >> (16 - BucketDepth)
}

// MarshalText encodes the hash as hex so it reads naturally in JSON,
// YAML and CBOR text fields.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a hex-encoded hash.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != HashSize {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(decoded), HashSize)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var hash Hash
	if len(b) != HashSize {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(b), HashSize)
	}
	copy(hash[:], b)
	return hash, nil
}
