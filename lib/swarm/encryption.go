// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Transform encrypts or decrypts a chunk payload. Segment i of src
// (32 bytes, the last one possibly short) is XORed with
// keccak256(keccak256(key ‖ uint32le(i))), the keystream every Swarm
// client uses for chunk data. dst and src may be the same slice; dst
// must be at least as long as src.
func (k *EncryptionKey) Transform(dst, src []byte) {
	hasher := sha3.NewLegacyKeccak256()
	var counter [4]byte
	var counterHash, segmentKey [HashSize]byte

	for segment, offset := uint32(0), 0; offset < len(src); segment, offset = segment+1, offset+EncryptionKeySize {
		hasher.Reset()
		hasher.Write(k[:])
		binary.LittleEndian.PutUint32(counter[:], segment)
		hasher.Write(counter[:])
		hasher.Sum(counterHash[:0])

		hasher.Reset()
		hasher.Write(counterHash[:])
		hasher.Sum(segmentKey[:0])

		end := min(offset+EncryptionKeySize, len(src))
		for i := offset; i < end; i++ {
			dst[i] = src[i] ^ segmentKey[i-offset]
		}
	}
}
