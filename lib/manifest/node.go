// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/bureau-foundation/swarmhash/lib/bmt"
	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// Sizes and markers of the node encoding.
const (
	ObfuscationKeySize = swarm.EncryptionKeySize
	VersionHashSize    = 31
	PrefixMaxSize      = 30
	PathSeparator      = '/'

	// IndexDocumentKey is the metadata key naming the document served
	// for an empty path.
	IndexDocumentKey = "website-index-document"
)

// versionHash marks the encoding version at the start of every node.
var versionHash = func() [VersionHashSize]byte {
	var marker [VersionHashSize]byte
	digest := bmt.Keccak256([]byte("mantaray:0.2"))
	copy(marker[:], digest[:VersionHashSize])
	return marker
}()

// NodeType is the set of flags describing a node. The flags of a child
// are stored in its parent's fork entry.
type NodeType uint8

const (
	TypeValue             NodeType = 2
	TypeEdge              NodeType = 4
	TypeWithPathSeparator NodeType = 8
	TypeWithMetadata      NodeType = 16
)

// Has reports whether every bit of flag is set.
func (t NodeType) Has(flag NodeType) bool {
	return t&flag == flag
}

var (
	// ErrNodeImmutable is returned when adding to a hashed node.
	ErrNodeImmutable = errors.New("manifest node is immutable after hashing")

	// ErrNotHashed is returned when reading the hash of a node that
	// has not been hashed.
	ErrNotHashed = errors.New("manifest node has not been hashed")

	// ErrForksReleased is returned when resolving paths through a
	// hashed in-memory node, whose forks were dropped after hashing.
	ErrForksReleased = errors.New("manifest node forks were released after hashing")

	// ErrEncryptedReference is returned when a node builder produces a
	// reference with an encryption key; node references are plain
	// 32-byte hashes.
	ErrEncryptedReference = errors.New("manifest node hashed to an encrypted reference")

	// ErrUnsupportedVersion is returned when a node's version marker
	// does not match.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// ErrPathNotFound is returned when no entry matches a path.
	ErrPathNotFound = errors.New("manifest path not found")

	// ErrIndexDocumentNotFound is returned when an empty path reaches
	// a node with no entry and no index document. It wraps
	// ErrPathNotFound.
	ErrIndexDocumentNotFound = fmt.Errorf("%w: no index document", ErrPathNotFound)
)

// Entry is the value stored at a path. A zero Hash marks a directory.
type Entry struct {
	Hash     swarm.Hash
	Metadata map[string]string
}

// IsDirectory reports whether the entry has no content hash.
func (e Entry) IsDirectory() bool {
	return e.Hash.IsZero()
}

// BytesHasher hashes a blob into a chunk tree. *pipeline.Pipeline
// satisfies it.
type BytesHasher interface {
	HashBytes(ctx context.Context, data []byte) (swarm.ChunkReference, error)
}

// Builder returns a fresh single-use BytesHasher. Each node is hashed
// through its own hasher.
type Builder func() (BytesHasher, error)

// Fork is an outgoing edge of a node.
type Fork struct {
	Prefix string
	Node   *Node
}

type fork struct {
	prefix []byte
	node   *Node
}

// Node is a mutable manifest trie node. Nodes are built with Add,
// hashed once with ComputeHash, and immutable from then on.
type Node struct {
	nodeType       NodeType
	obfuscationKey swarm.EncryptionKey
	entry          swarm.Hash
	metadata       map[string]string
	forks          map[byte]*fork

	// embedEntry is set on the root once any file entry is added; it
	// makes every node of the trie serialize its entry field.
	embedEntry bool

	hash *swarm.Hash
}

// NodeOptions configures a root node.
type NodeOptions struct {
	// ObfuscationKey is shared by every node of the trie. When nil, a
	// random key is drawn if Encrypted is set; otherwise the zero key
	// leaves nodes unobfuscated.
	ObfuscationKey *swarm.EncryptionKey
	Encrypted      bool
}

// NewNode creates an empty root node.
func NewNode(options NodeOptions) (*Node, error) {
	node := &Node{forks: make(map[byte]*fork)}
	switch {
	case options.ObfuscationKey != nil:
		node.obfuscationKey = *options.ObfuscationKey
	case options.Encrypted:
		key, err := swarm.NewRandomEncryptionKey()
		if err != nil {
			return nil, fmt.Errorf("generating obfuscation key: %w", err)
		}
		node.obfuscationKey = key
	}
	return node, nil
}

func (n *Node) newChild() *Node {
	return &Node{obfuscationKey: n.obfuscationKey, forks: make(map[byte]*fork)}
}

// Add stores entry at path, splitting forks as needed. Adding to a
// path that already holds an entry replaces both its hash and its
// metadata.
func (n *Node) Add(path string, entry Entry) error {
	if n.hash != nil {
		return ErrNodeImmutable
	}
	if !entry.IsDirectory() {
		n.embedEntry = true
	}
	return n.add([]byte(path), entry)
}

func (n *Node) add(path []byte, entry Entry) error {
	if n.hash != nil {
		return ErrNodeImmutable
	}

	if len(path) == 0 {
		n.entry = entry.Hash
		n.nodeType |= TypeValue
		if len(entry.Metadata) > 0 {
			n.metadata = maps.Clone(entry.Metadata)
			n.nodeType |= TypeWithMetadata
		} else {
			n.metadata = nil
			n.nodeType &^= TypeWithMetadata
		}
		return nil
	}

	existing, ok := n.forks[path[0]]
	if !ok {
		prefix := bytes.Clone(path[:min(len(path), PrefixMaxSize)])
		child := n.newChild()
		if err := child.add(path[len(prefix):], entry); err != nil {
			return err
		}
		child.setPathSeparatorFlag(prefix)
		n.forks[path[0]] = &fork{prefix: prefix, node: child}
		n.nodeType |= TypeEdge
		return nil
	}

	common := commonPrefixLength(existing.prefix, path)
	if common == len(existing.prefix) {
		return existing.node.add(path[common:], entry)
	}

	// Split: the shared part becomes a new node holding the old child
	// under the remainder of its prefix.
	middle := n.newChild()
	remainder := existing.prefix[common:]
	middle.forks[remainder[0]] = &fork{prefix: remainder, node: existing.node}
	middle.nodeType |= TypeEdge
	existing.node.setPathSeparatorFlag(remainder)

	shared := bytes.Clone(existing.prefix[:common])
	middle.setPathSeparatorFlag(shared)
	n.forks[path[0]] = &fork{prefix: shared, node: middle}
	return middle.add(path[common:], entry)
}

// setPathSeparatorFlag sets or clears TypeWithPathSeparator for a node
// reached through prefix.
func (n *Node) setPathSeparatorFlag(prefix []byte) {
	if bytes.IndexByte(prefix, PathSeparator) >= 0 {
		n.nodeType |= TypeWithPathSeparator
	} else {
		n.nodeType &^= TypeWithPathSeparator
	}
}

func commonPrefixLength(a, b []byte) int {
	length := min(len(a), len(b))
	for i := range length {
		if a[i] != b[i] {
			return i
		}
	}
	return length
}

// ComputeHash hashes every node of the trie bottom-up, each through a
// fresh hasher from builder, and then drops the fork tables. Calling
// it again on a hashed node does nothing.
func (n *Node) ComputeHash(ctx context.Context, builder Builder) error {
	return n.computeHash(ctx, builder, n.embedEntry)
}

func (n *Node) computeHash(ctx context.Context, builder Builder, embedEntry bool) error {
	if n.hash != nil {
		return nil
	}
	for _, key := range n.sortedForkKeys() {
		if err := n.forks[key].node.computeHash(ctx, builder, embedEntry); err != nil {
			return err
		}
	}

	data, err := n.marshal(embedEntry)
	if err != nil {
		return err
	}
	hasher, err := builder()
	if err != nil {
		return fmt.Errorf("building node hasher: %w", err)
	}
	reference, err := hasher.HashBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("hashing manifest node: %w", err)
	}
	if reference.Key != nil {
		return ErrEncryptedReference
	}

	hash := reference.Hash
	n.hash = &hash
	n.forks = nil
	return nil
}

func (n *Node) sortedForkKeys() []byte {
	keys := make([]byte, 0, len(n.forks))
	for key := range n.forks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Hash returns the node's hash, or ErrNotHashed before ComputeHash.
func (n *Node) Hash() (swarm.Hash, error) {
	if n.hash == nil {
		return swarm.Hash{}, ErrNotHashed
	}
	return *n.hash, nil
}

// IsHashed reports whether ComputeHash has run.
func (n *Node) IsHashed() bool {
	return n.hash != nil
}

// Type returns the node's flags.
func (n *Node) Type() NodeType {
	return n.nodeType
}

// Entry returns the node's entry hash, zero if the node holds none.
func (n *Node) Entry() swarm.Hash {
	return n.entry
}

// NodeMetadata returns a copy of the node's own metadata.
func (n *Node) NodeMetadata() map[string]string {
	return maps.Clone(n.metadata)
}

// ObfuscationKey returns the key the node is serialized with.
func (n *Node) ObfuscationKey() swarm.EncryptionKey {
	return n.obfuscationKey
}

// Forks returns the node's outgoing edges keyed by first byte. A
// hashed node has none.
func (n *Node) Forks() map[byte]Fork {
	forks := make(map[byte]Fork, len(n.forks))
	for key, f := range n.forks {
		forks[key] = Fork{Prefix: string(f.prefix), Node: f.node}
	}
	return forks
}

// Lookup returns the node at exactly path, without index document
// fallback.
func (n *Node) Lookup(path string) (*Node, error) {
	if n.hash != nil {
		return nil, ErrForksReleased
	}
	current := n
	remaining := []byte(path)
	for len(remaining) > 0 {
		f, ok := current.forks[remaining[0]]
		if !ok || !bytes.HasPrefix(remaining, f.prefix) {
			return nil, fmt.Errorf("%w: %q", ErrPathNotFound, path)
		}
		current = f.node
		remaining = remaining[len(f.prefix):]
	}
	return current, nil
}

// ResolveHash returns the entry hash stored for path, falling back to
// the index document for paths that end at a directory.
func (n *Node) ResolveHash(ctx context.Context, path string) (swarm.Hash, error) {
	if n.hash != nil {
		return swarm.Hash{}, ErrForksReleased
	}
	return resolveHash(ctx, n, path)
}

// Metadata returns the metadata stored for path, with the same
// fallback as ResolveHash.
func (n *Node) Metadata(ctx context.Context, path string) (map[string]string, error) {
	if n.hash != nil {
		return nil, ErrForksReleased
	}
	return resolveMetadata(ctx, n, path)
}

// trieNode implementation.

func (n *Node) load(context.Context) error { return nil }

func (n *Node) entryHash() swarm.Hash { return n.entry }

func (n *Node) nodeMetadata() map[string]string { return n.metadata }

func (n *Node) child(first byte) ([]byte, trieNode, bool) {
	f, ok := n.forks[first]
	if !ok {
		return nil, nil, false
	}
	return f.prefix, f.node, true
}
