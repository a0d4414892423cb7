// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the mantaray manifest: a path-compressed
// trie mapping paths to content hashes, stored as one hashed blob per
// node.
//
// A manifest is built in memory with [Node] (usually through the
// [Manifest] wrapper), hashed bottom-up with a pipeline [Builder], and
// read back lazily with [ReferencedNode], which decodes a node from
// the chunk store only when resolution reaches it.
//
// # Node encoding
//
// Every node serializes as
//
//	obfuscationKey (32, clear)
//	versionHash    (31) ┐
//	entryLength    (1)  │
//	entry          (0 or 32)
//	forkIndex      (32, one bit per first byte)
//	forks...            ┘ XORed with the repeating obfuscation key
//
// and each present fork, in ascending first-byte order, as
//
//	flags (1) prefixLength (1) prefix (30, zero padded) childHash (32)
//	[metadataLength (2, big endian) metadataJSON padded with '\n']
//
// where flags are the child node's type bits and the metadata block is
// present only when the child has the WithMetadata bit. The padding
// makes the metadata block, length included, a multiple of 32 bytes.
//
// The entry field is written for every node of a trie once any file
// entry has been added, and omitted (length 0) for directory-only
// tries.
package manifest
