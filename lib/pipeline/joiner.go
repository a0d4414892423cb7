// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Joiner reads the content behind a reference back out of a store,
// walking intermediate chunks depth-first and decrypting compacted
// chunks with the key carried in each reference.
type Joiner struct {
	store chunkstore.Store
}

// NewJoiner creates a joiner reading from store.
func NewJoiner(store chunkstore.Store) *Joiner {
	return &Joiner{store: store}
}

// Join writes the content of reference to w and returns the number of
// bytes written.
func (j *Joiner) Join(ctx context.Context, reference swarm.ChunkReference, w io.Writer) (int64, error) {
	return j.join(ctx, reference.Hash, reference.Key, reference.UseRecursiveEncryption, w)
}

// ReadAll returns the content of reference.
func (j *Joiner) ReadAll(ctx context.Context, reference swarm.ChunkReference) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := j.Join(ctx, reference, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (j *Joiner) join(ctx context.Context, hash swarm.Hash, key *swarm.EncryptionKey, recursive bool, w io.Writer) (int64, error) {
	chunk, err := j.store.Get(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("joining %s: %w", hash, err)
	}
	payload := chunk.Data
	if key != nil {
		decrypted := make([]byte, len(payload))
		key.Transform(decrypted, payload)
		payload = decrypted
	}

	if !chunk.IsIntermediate() {
		if uint64(len(payload)) < chunk.Span {
			return 0, fmt.Errorf("leaf chunk %s holds %d bytes, span says %d", hash, len(payload), chunk.Span)
		}
		written, err := w.Write(payload[:chunk.Span])
		return int64(written), err
	}

	referenceSize := swarm.HashSize
	if recursive {
		referenceSize += swarm.EncryptionKeySize
	}
	if len(payload) == 0 || len(payload)%referenceSize != 0 {
		return 0, fmt.Errorf("intermediate chunk %s: %d bytes is not a whole number of %d-byte references",
			hash, len(payload), referenceSize)
	}

	var total int64
	for offset := 0; offset < len(payload); offset += referenceSize {
		childHash, _ := swarm.HashFromBytes(payload[offset : offset+swarm.HashSize])
		var childKey *swarm.EncryptionKey
		if recursive {
			var k swarm.EncryptionKey
			copy(k[:], payload[offset+swarm.HashSize:offset+referenceSize])
			childKey = &k
		}
		written, err := j.join(ctx, childHash, childKey, recursive, w)
		total += written
		if err != nil {
			return total, err
		}
	}
	if uint64(total) != chunk.Span {
		return total, fmt.Errorf("intermediate chunk %s spans %d bytes, children held %d", hash, chunk.Span, total)
	}
	return total, nil
}
