// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/swarmhash/lib/codec"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Directory names within a FileStore root.
const (
	chunkDir = "chunks"
	tmpDir   = "tmp"
)

// fileRecordVersion is the on-disk record format version.
const fileRecordVersion = 1

// fileRecord is the CBOR body of one chunk file. Checksum is the
// BLAKE3 hash of span‖payload before compression, so corruption is
// caught independently of the compression layer.
type fileRecord struct {
	Version     uint8       `cbor:"version"`
	Hash        swarm.Hash  `cbor:"hash"`
	Span        uint64      `cbor:"span"`
	Size        int         `cbor:"size"`
	Compression Compression `cbor:"compression"`
	Data        []byte      `cbor:"data"`
	Stamp       []byte      `cbor:"stamp,omitempty"`
	Checksum    []byte      `cbor:"checksum"`
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Compression applied to payloads on write. Payloads that do not
	// shrink are stored uncompressed regardless.
	Compression Compression

	// Logger receives debug records for writes and deletes. Nil
	// discards them.
	Logger *slog.Logger
}

// FileStore stores each chunk in its own file, sharded by the first
// two bytes of the hash hex: chunks/a3/f9/a3f9b2c1....chunk. Files
// are written to a temp directory and renamed into place, so a reader
// never observes a partial chunk.
type FileStore struct {
	root        string
	compression Compression
	logger      *slog.Logger

	// writeMu serializes the existence check and rename in Put with
	// Delete, making Put's "already present" answer exact.
	writeMu sync.Mutex
}

// NewFileStore creates a FileStore rooted at root, creating the
// directory layout if needed.
func NewFileStore(root string, options FileStoreOptions) (*FileStore, error) {
	for _, dir := range []string{root, filepath.Join(root, chunkDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	if _, err := ParseCompression(options.Compression.String()); err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{root: root, compression: options.Compression, logger: logger}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

// ChunkPath returns the sharded filesystem path for a chunk.
func (s *FileStore) ChunkPath(hash swarm.Hash) string {
	hex := hash.String()
	return filepath.Join(s.root, chunkDir, hex[:2], hex[2:4], hex+".chunk")
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, chunk *swarm.Chunk) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	payload, compression, err := compress(chunk.Data, s.compression)
	if err != nil {
		return false, fmt.Errorf("compressing chunk %s: %w", chunk.Hash, err)
	}
	checksum := blake3.Sum256(chunk.SpanData())
	encoded, err := codec.Marshal(&fileRecord{
		Version:     fileRecordVersion,
		Hash:        chunk.Hash,
		Span:        chunk.Span,
		Size:        len(chunk.Data),
		Compression: compression,
		Data:        payload,
		Stamp:       chunk.Stamp,
		Checksum:    checksum[:],
	})
	if err != nil {
		return false, fmt.Errorf("encoding chunk %s: %w", chunk.Hash, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	finalPath := s.ChunkPath(chunk.Hash)
	if _, err := os.Stat(finalPath); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking chunk %s: %w", chunk.Hash, err)
	}

	if err := s.writeAtomic(finalPath, encoded); err != nil {
		return false, fmt.Errorf("writing chunk %s: %w", chunk.Hash, err)
	}
	s.logger.Debug("stored chunk",
		"hash", chunk.Hash.String(),
		"span", chunk.Span,
		"compression", compression.String(),
		"bytes", len(encoded),
	)
	return true, nil
}

// writeAtomic writes data to a temp file and renames it to finalPath.
func (s *FileStore) writeAtomic(finalPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "chunk-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming to %s: %w", finalPath, err)
	}
	success = true
	return nil
}

// Get implements Store. The record's checksum is verified after
// decompression.
func (s *FileStore) Get(ctx context.Context, hash swarm.Hash) (*swarm.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := os.ReadFile(s.ChunkPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("getting chunk %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", hash, err)
	}

	var record fileRecord
	if err := codec.Unmarshal(encoded, &record); err != nil {
		return nil, fmt.Errorf("decoding chunk %s: %w", hash, err)
	}
	if record.Version != fileRecordVersion {
		return nil, fmt.Errorf("chunk %s: unsupported record version %d", hash, record.Version)
	}
	if record.Hash != hash {
		return nil, fmt.Errorf("chunk file for %s holds %s", hash, record.Hash)
	}

	data, err := decompress(record.Data, record.Compression, record.Size)
	if err != nil {
		return nil, fmt.Errorf("decompressing chunk %s: %w", hash, err)
	}
	chunk, err := swarm.NewChunk(hash, record.Span, data)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", hash, err)
	}
	checksum := blake3.Sum256(chunk.SpanData())
	if !bytes.Equal(checksum[:], record.Checksum) {
		return nil, fmt.Errorf("chunk %s: checksum mismatch", hash)
	}
	chunk.Stamp = record.Stamp
	return chunk, nil
}

// Has implements Store.
func (s *FileStore) Has(ctx context.Context, hash swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.ChunkPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking chunk %s: %w", hash, err)
	}
	return true, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, hash swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := os.Remove(s.ChunkPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing chunk %s: %w", hash, err)
	}
	s.logger.Debug("deleted chunk", "hash", hash.String())
	return true, nil
}
