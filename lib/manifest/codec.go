// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/bureau-foundation/swarmhash/lib/swarm"
)

const (
	entryLengthSize    = 1
	forkIndexSize      = 32
	forkHeaderSize     = 2 // flags, prefix length
	forkPrefixSize     = PrefixMaxSize
	forkMetadataLength = 2

	// headerSize covers everything before the fork index.
	headerSize = ObfuscationKeySize + VersionHashSize + entryLengthSize
)

// forkIndex is a 256-bit set of fork first bytes.
type forkIndex [forkIndexSize]byte

func (f *forkIndex) set(b byte) {
	f[b/8] |= 1 << (b % 8)
}

func (f *forkIndex) has(b byte) bool {
	return f[b/8]&(1<<(b%8)) != 0
}

// marshal serializes a node whose children are all hashed.
func (n *Node) marshal(embedEntry bool) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.Write(n.obfuscationKey[:])
	buffer.Write(versionHash[:])
	if embedEntry {
		buffer.WriteByte(swarm.HashSize)
		buffer.Write(n.entry[:])
	} else {
		buffer.WriteByte(0)
	}

	keys := n.sortedForkKeys()
	var index forkIndex
	for _, key := range keys {
		index.set(key)
	}
	buffer.Write(index[:])

	for _, key := range keys {
		f := n.forks[key]
		if f.node.hash == nil {
			return nil, fmt.Errorf("serializing fork %q: %w", f.prefix, ErrNotHashed)
		}
		var prefix [forkPrefixSize]byte
		copy(prefix[:], f.prefix)
		buffer.WriteByte(byte(f.node.nodeType))
		buffer.WriteByte(byte(len(f.prefix)))
		buffer.Write(prefix[:])
		buffer.Write(f.node.hash[:])

		if f.node.nodeType.Has(TypeWithMetadata) {
			block, err := encodeMetadata(f.node.metadata)
			if err != nil {
				return nil, fmt.Errorf("serializing fork %q: %w", f.prefix, err)
			}
			buffer.Write(block)
		}
	}

	data := buffer.Bytes()
	n.obfuscationKey.XOR(data[ObfuscationKeySize:], data[ObfuscationKeySize:])
	return data, nil
}

// encodeMetadata returns the length-prefixed, newline-padded JSON block
// for metadata. encoding/json writes map keys in sorted order.
func encodeMetadata(metadata map[string]string) ([]byte, error) {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	total := forkMetadataLength + len(encoded)
	if remainder := total % ObfuscationKeySize; remainder != 0 {
		encoded = append(encoded, bytes.Repeat([]byte{'\n'}, ObfuscationKeySize-remainder)...)
	}
	if len(encoded) > math.MaxUint16 {
		return nil, fmt.Errorf("metadata block of %d bytes exceeds %d", len(encoded), math.MaxUint16)
	}
	block := make([]byte, forkMetadataLength, forkMetadataLength+len(encoded))
	binary.BigEndian.PutUint16(block, uint16(len(encoded)))
	return append(block, encoded...), nil
}

// decodedFork is one fork entry read from a serialized node.
type decodedFork struct {
	nodeType  NodeType
	prefix    []byte
	childHash swarm.Hash
	metadata  map[string]string
}

// decodedNode is the content of one serialized node.
type decodedNode struct {
	obfuscationKey swarm.EncryptionKey
	entry          swarm.Hash
	forks          map[byte]decodedFork
}

// unmarshalNode parses a serialized node. data is not modified.
func unmarshalNode(data []byte) (*decodedNode, error) {
	if len(data) < headerSize+forkIndexSize {
		return nil, fmt.Errorf("manifest node of %d bytes is shorter than its header", len(data))
	}
	node := &decodedNode{forks: make(map[byte]decodedFork)}
	copy(node.obfuscationKey[:], data[:ObfuscationKeySize])

	body := make([]byte, len(data)-ObfuscationKeySize)
	node.obfuscationKey.XOR(body, data[ObfuscationKeySize:])

	if !bytes.Equal(body[:VersionHashSize], versionHash[:]) {
		return nil, fmt.Errorf("%w: version marker %x", ErrUnsupportedVersion, body[:VersionHashSize])
	}
	offset := VersionHashSize

	entryLength := int(body[offset])
	offset++
	switch entryLength {
	case 0:
	case swarm.HashSize:
		if len(body) < offset+entryLength+forkIndexSize {
			return nil, fmt.Errorf("manifest node truncated in entry")
		}
		copy(node.entry[:], body[offset:offset+entryLength])
		offset += entryLength
	default:
		return nil, fmt.Errorf("manifest node entry length %d, want 0 or %d", entryLength, swarm.HashSize)
	}

	var index forkIndex
	copy(index[:], body[offset:offset+forkIndexSize])
	offset += forkIndexSize

	for b := range 256 {
		key := byte(b)
		if !index.has(key) {
			continue
		}
		f, consumed, err := unmarshalFork(body[offset:])
		if err != nil {
			return nil, fmt.Errorf("decoding fork %#02x: %w", key, err)
		}
		if len(f.prefix) == 0 || f.prefix[0] != key {
			return nil, fmt.Errorf("fork %#02x has prefix %q", key, f.prefix)
		}
		node.forks[key] = f
		offset += consumed
	}
	return node, nil
}

func unmarshalFork(data []byte) (decodedFork, int, error) {
	const fixed = forkHeaderSize + forkPrefixSize + swarm.HashSize
	if len(data) < fixed {
		return decodedFork{}, 0, fmt.Errorf("truncated fork: %d bytes", len(data))
	}
	f := decodedFork{nodeType: NodeType(data[0])}
	prefixLength := int(data[1])
	if prefixLength == 0 || prefixLength > forkPrefixSize {
		return decodedFork{}, 0, fmt.Errorf("fork prefix length %d out of range", prefixLength)
	}
	f.prefix = bytes.Clone(data[forkHeaderSize : forkHeaderSize+prefixLength])
	copy(f.childHash[:], data[forkHeaderSize+forkPrefixSize:fixed])
	consumed := fixed

	if f.nodeType.Has(TypeWithMetadata) {
		if len(data) < consumed+forkMetadataLength {
			return decodedFork{}, 0, fmt.Errorf("truncated metadata length")
		}
		length := int(binary.BigEndian.Uint16(data[consumed:]))
		consumed += forkMetadataLength
		if len(data) < consumed+length {
			return decodedFork{}, 0, fmt.Errorf("metadata block of %d bytes truncated", length)
		}
		if err := json.Unmarshal(data[consumed:consumed+length], &f.metadata); err != nil {
			return decodedFork{}, 0, fmt.Errorf("decoding metadata: %w", err)
		}
		consumed += length
	}
	return f, consumed, nil
}
