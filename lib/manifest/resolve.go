// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"context"
	"fmt"
	"maps"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

// trieNode is the view of a node that path resolution needs. Both the
// in-memory Node and the lazily decoded ReferencedNode provide it.
type trieNode interface {
	load(ctx context.Context) error
	entryHash() swarm.Hash
	nodeMetadata() map[string]string
	child(first byte) (prefix []byte, node trieNode, ok bool)
}

// resolve walks from node along path. A path that ends at a node
// without an entry continues through the index document named by the
// node's "/" fork, if any.
func resolve(ctx context.Context, node trieNode, path []byte) (trieNode, error) {
	original := string(path)
	fellBack := false
	for {
		if err := node.load(ctx); err != nil {
			return nil, err
		}

		if len(path) == 0 {
			if !node.entryHash().IsZero() {
				return node, nil
			}
			if fellBack {
				return nil, fmt.Errorf("%w: %q", ErrIndexDocumentNotFound, original)
			}
			index, err := indexDocument(ctx, node)
			if err != nil {
				return nil, err
			}
			if index == "" {
				return nil, fmt.Errorf("%w: %q", ErrIndexDocumentNotFound, original)
			}
			path = []byte(index)
			fellBack = true
			continue
		}

		prefix, child, ok := node.child(path[0])
		if !ok || !bytes.HasPrefix(path, prefix) {
			return nil, fmt.Errorf("%w: %q", ErrPathNotFound, original)
		}
		node = child
		path = path[len(prefix):]
	}
}

// indexDocument returns the index document suffix recorded on the fork
// whose prefix is exactly the path separator, or "".
func indexDocument(ctx context.Context, node trieNode) (string, error) {
	prefix, child, ok := node.child(PathSeparator)
	if !ok || len(prefix) != 1 {
		return "", nil
	}
	if err := child.load(ctx); err != nil {
		return "", err
	}
	return child.nodeMetadata()[IndexDocumentKey], nil
}

func resolveHash(ctx context.Context, root trieNode, path string) (swarm.Hash, error) {
	node, err := resolve(ctx, root, []byte(path))
	if err != nil {
		return swarm.Hash{}, err
	}
	return node.entryHash(), nil
}

func resolveMetadata(ctx context.Context, root trieNode, path string) (map[string]string, error) {
	node, err := resolve(ctx, root, []byte(path))
	if err != nil {
		return nil, err
	}
	return maps.Clone(node.nodeMetadata()), nil
}
