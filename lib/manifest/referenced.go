// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/bureau-foundation/swarmhash/lib/chunkstore"
	"github.com/bureau-foundation/swarmhash/lib/pipeline"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// ReferencedNode is a manifest node known by hash and decoded from a
// chunk store on first use. Children are ReferencedNodes too, so
// resolution only reads the nodes along the path it follows.
//
// ReferencedNode is safe for concurrent use.
type ReferencedNode struct {
	joiner *pipeline.Joiner
	hash   swarm.Hash

	// Known from the parent's fork entry; zero for a root.
	nodeType NodeType
	metadata map[string]string

	mu             sync.Mutex
	decoded        bool
	obfuscationKey swarm.EncryptionKey
	entry          swarm.Hash
	forks          map[byte]*referencedFork
}

type referencedFork struct {
	prefix []byte
	node   *ReferencedNode
}

// ReferencedFork is an outgoing edge of a decoded ReferencedNode.
type ReferencedFork struct {
	Prefix string
	Node   *ReferencedNode
}

// NewReferencedNode returns a root node for hash. Nothing is read
// until the node is decoded or resolved through.
func NewReferencedNode(store chunkstore.Store, hash swarm.Hash) *ReferencedNode {
	return &ReferencedNode{joiner: pipeline.NewJoiner(store), hash: hash}
}

// Hash returns the node's hash.
func (n *ReferencedNode) Hash() swarm.Hash {
	return n.hash
}

// Type returns the flags recorded for the node by its parent. A root
// node reports zero.
func (n *ReferencedNode) Type() NodeType {
	return n.nodeType
}

// NodeMetadata returns a copy of the metadata recorded for the node by
// its parent.
func (n *ReferencedNode) NodeMetadata() map[string]string {
	return maps.Clone(n.metadata)
}

// Decode reads and parses the node if that has not happened yet.
func (n *ReferencedNode) Decode(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.decoded {
		return nil
	}

	data, err := n.joiner.ReadAll(ctx, swarm.ChunkReference{Hash: n.hash})
	if err != nil {
		return fmt.Errorf("reading manifest node %s: %w", n.hash, err)
	}
	decoded, err := unmarshalNode(data)
	if err != nil {
		return fmt.Errorf("decoding manifest node %s: %w", n.hash, err)
	}

	n.obfuscationKey = decoded.obfuscationKey
	n.entry = decoded.entry
	n.forks = make(map[byte]*referencedFork, len(decoded.forks))
	for key, f := range decoded.forks {
		n.forks[key] = &referencedFork{
			prefix: f.prefix,
			node: &ReferencedNode{
				joiner:   n.joiner,
				hash:     f.childHash,
				nodeType: f.nodeType,
				metadata: f.metadata,
			},
		}
	}
	n.decoded = true
	return nil
}

// Entry returns the node's entry hash, zero if it holds none.
func (n *ReferencedNode) Entry(ctx context.Context) (swarm.Hash, error) {
	if err := n.Decode(ctx); err != nil {
		return swarm.Hash{}, err
	}
	return n.entryHash(), nil
}

// ObfuscationKey returns the key the node was serialized with.
func (n *ReferencedNode) ObfuscationKey(ctx context.Context) (swarm.EncryptionKey, error) {
	if err := n.Decode(ctx); err != nil {
		return swarm.EncryptionKey{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.obfuscationKey, nil
}

// Forks returns the node's outgoing edges keyed by first byte.
func (n *ReferencedNode) Forks(ctx context.Context) (map[byte]ReferencedFork, error) {
	if err := n.Decode(ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	forks := make(map[byte]ReferencedFork, len(n.forks))
	for key, f := range n.forks {
		forks[key] = ReferencedFork{Prefix: string(f.prefix), Node: f.node}
	}
	return forks, nil
}

// ResolveHash returns the entry hash stored for path, falling back to
// the index document for paths that end at a directory.
func (n *ReferencedNode) ResolveHash(ctx context.Context, path string) (swarm.Hash, error) {
	return resolveHash(ctx, n, path)
}

// Metadata returns the metadata stored for path.
func (n *ReferencedNode) Metadata(ctx context.Context, path string) (map[string]string, error) {
	return resolveMetadata(ctx, n, path)
}

// WalkFunc is called by Walk for every node holding an entry.
type WalkFunc func(path string, entry swarm.Hash, metadata map[string]string) error

// Walk visits every entry below n in ascending path order.
func (n *ReferencedNode) Walk(ctx context.Context, fn WalkFunc) error {
	return n.walk(ctx, "", fn)
}

func (n *ReferencedNode) walk(ctx context.Context, path string, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	forks, err := n.Forks(ctx)
	if err != nil {
		return err
	}
	if entry := n.entryHash(); !entry.IsZero() {
		if err := fn(path, entry, n.NodeMetadata()); err != nil {
			return err
		}
	}

	keys := make([]byte, 0, len(forks))
	for key := range forks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		f := forks[key]
		if err := f.Node.walk(ctx, path+f.Prefix, fn); err != nil {
			return err
		}
	}
	return nil
}

// trieNode implementation.

func (n *ReferencedNode) load(ctx context.Context) error {
	return n.Decode(ctx)
}

func (n *ReferencedNode) entryHash() swarm.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entry
}

func (n *ReferencedNode) nodeMetadata() map[string]string {
	return n.metadata
}

func (n *ReferencedNode) child(first byte) ([]byte, trieNode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.forks[first]
	if !ok {
		return nil, nil, false
	}
	return f.prefix, f.node, true
}
