// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// EncryptionKeySize is the byte length of a chunk encryption key.
const EncryptionKeySize = 32

// ErrNotImplemented is returned for pipeline configurations the
// hashing core recognizes but does not implement: redundancy levels
// above None and the recursive file encryption pipeline.
var ErrNotImplemented = errors.New("not implemented")

// EncryptionKey is a symmetric key. Chunk payloads are encrypted with
// Transform; manifest nodes are obfuscated with the plain repeating
// XOR. Both are their own inverse.
type EncryptionKey [EncryptionKeySize]byte

// NewRandomEncryptionKey reads a key from crypto/rand.
func NewRandomEncryptionKey() (EncryptionKey, error) {
	var key EncryptionKey
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generating encryption key: %w", err)
	}
	return key, nil
}

// XOR writes src XOR key (key repeated over the whole length) into
// dst. This is the manifest obfuscation, not chunk encryption. dst and src may be the same slice. dst must be at least as long
// as src.
func (k *EncryptionKey) XOR(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ k[i%EncryptionKeySize]
	}
}

// IsZero reports whether the key is all zeros.
func (k *EncryptionKey) IsZero() bool {
	return *k == EncryptionKey{}
}

// String returns the hex encoding of the key.
func (k EncryptionKey) String() string {
	return hex.EncodeToString(k[:])
}

// ChunkReference is the result of hashing data through the pipeline:
// the root hash, the root chunk's encryption key when the root chunk
// was encrypted, and whether intermediate chunks carry a key next to
// every child hash.
type ChunkReference struct {
	Hash                   Hash
	Key                    *EncryptionKey
	UseRecursiveEncryption bool
}

// Bytes returns hash, or hash‖key when the reference carries a key.
func (r ChunkReference) Bytes() []byte {
	if r.Key == nil {
		return append([]byte(nil), r.Hash[:]...)
	}
	buffer := make([]byte, 0, HashSize+EncryptionKeySize)
	buffer = append(buffer, r.Hash[:]...)
	return append(buffer, r.Key[:]...)
}

// String returns the hex encoding of Bytes.
func (r ChunkReference) String() string {
	return hex.EncodeToString(r.Bytes())
}

// ParseChunkReference parses a 64- or 128-character hex reference. A
// 128-character reference carries a key and is marked as using
// recursive encryption.
func ParseChunkReference(hexString string) (ChunkReference, error) {
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return ChunkReference{}, fmt.Errorf("parsing reference: %w", err)
	}
	switch len(decoded) {
	case HashSize:
		hash, _ := HashFromBytes(decoded)
		return ChunkReference{Hash: hash}, nil
	case HashSize + EncryptionKeySize:
		hash, _ := HashFromBytes(decoded[:HashSize])
		var key EncryptionKey
		copy(key[:], decoded[HashSize:])
		return ChunkReference{Hash: hash, Key: &key, UseRecursiveEncryption: true}, nil
	default:
		return ChunkReference{}, fmt.Errorf("reference is %d bytes, want %d or %d",
			len(decoded), HashSize, HashSize+EncryptionKeySize)
	}
}
