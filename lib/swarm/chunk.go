// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidChunkData is returned when chunk data is shorter than the
// span prefix or longer than span plus ChunkDataSize.
var ErrInvalidChunkData = errors.New("invalid chunk data")

// Chunk is an immutable unit of storage. Hash is the BMT hash of
// span‖Data. Stamp is the serialized postage stamp attached when the
// chunk was written; nil for chunks that were never stamped.
type Chunk struct {
	Hash  Hash
	Span  uint64
	Data  []byte
	Stamp []byte
}

// NewChunk builds a chunk from its hash, span and payload. The payload
// is not copied.
func NewChunk(hash Hash, span uint64, data []byte) (*Chunk, error) {
	if len(data) > ChunkDataSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, max %d", ErrInvalidChunkData, len(data), ChunkDataSize)
	}
	return &Chunk{Hash: hash, Span: span, Data: data}, nil
}

// ParseChunk splits span‖payload into a chunk with the given hash.
func ParseChunk(hash Hash, spanData []byte) (*Chunk, error) {
	if len(spanData) < SpanSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the span", ErrInvalidChunkData, len(spanData))
	}
	return NewChunk(hash, SpanFromBytes(spanData[:SpanSize]), spanData[SpanSize:])
}

// SpanData returns span‖payload as a newly allocated slice.
func (c *Chunk) SpanData() []byte {
	buffer := make([]byte, SpanSize+len(c.Data))
	binary.LittleEndian.PutUint64(buffer, c.Span)
	copy(buffer[SpanSize:], c.Data)
	return buffer
}

// IsIntermediate reports whether the chunk is a tree chunk whose
// payload is a list of child references rather than content.
func (c *Chunk) IsIntermediate() bool {
	return c.Span > ChunkDataSize
}

// SpanToBytes encodes a span as 8 little-endian bytes.
func SpanToBytes(span uint64) []byte {
	buffer := make([]byte, SpanSize)
	binary.LittleEndian.PutUint64(buffer, span)
	return buffer
}

// SpanFromBytes decodes an 8-byte little-endian span. The caller must
// pass at least SpanSize bytes.
func SpanFromBytes(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b[:SpanSize])
}
