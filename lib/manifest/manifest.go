// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Manifest is a directory of paths built in memory and saved as a
// mantaray trie.
type Manifest struct {
	root *Node
}

// NewManifest creates an empty manifest. An encrypted manifest
// obfuscates its nodes with a random key.
func NewManifest(encrypted bool) (*Manifest, error) {
	root, err := NewNode(NodeOptions{Encrypted: encrypted})
	if err != nil {
		return nil, err
	}
	return &Manifest{root: root}, nil
}

// Root returns the manifest's root node.
func (m *Manifest) Root() *Node {
	return m.root
}

// Add records a file at path. Leading separators are stripped so that
// "/a.txt" and "a.txt" name the same entry.
func (m *Manifest) Add(path string, hash swarm.Hash, metadata map[string]string) error {
	path = strings.TrimLeft(path, string(PathSeparator))
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrPathNotFound)
	}
	if hash.IsZero() {
		return fmt.Errorf("adding %q: zero content hash", path)
	}
	return m.root.Add(path, Entry{Hash: hash, Metadata: metadata})
}

// SetIndexDocument names the file served for an empty path.
func (m *Manifest) SetIndexDocument(name string) error {
	name = strings.TrimLeft(name, string(PathSeparator))
	if name == "" {
		return fmt.Errorf("setting index document: empty name")
	}
	return m.root.Add(string(PathSeparator), Entry{
		Metadata: map[string]string{IndexDocumentKey: name},
	})
}

// Save hashes the manifest and returns the root hash. The manifest
// cannot be changed afterwards.
func (m *Manifest) Save(ctx context.Context, builder Builder) (swarm.Hash, error) {
	if err := m.root.ComputeHash(ctx, builder); err != nil {
		return swarm.Hash{}, fmt.Errorf("saving manifest: %w", err)
	}
	return m.root.Hash()
}

// PipelineBuilder returns a Builder creating a pipeline from options
// for every node. Node references must be plain, so options must not
// enable compaction.
func PipelineBuilder(options pipeline.Options) Builder {
	return func() (BytesHasher, error) {
		if options.CompactLevel != 0 {
			return nil, fmt.Errorf("%w: compaction level %d", ErrEncryptedReference, options.CompactLevel)
		}
		p, err := pipeline.New(options)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
