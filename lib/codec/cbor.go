// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxSnapshotEntries bounds the array length the decoder accepts. A
// stamp snapshot holds one element per stamped chunk, which exceeds
// the library's default limit for stores of a few hundred megabytes.
const MaxSnapshotEntries = 1 << 26

var (
	encoding = mustEncMode()
	decoding = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	options := cbor.CoreDetEncOptions()
	// Hashes implement encoding.TextMarshaler and are written as their
	// hex form.
	options.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := options.EncMode()
	if err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}
	return mode
}

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: MaxSnapshotEntries,
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
	return mode
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encoding.Marshal(v)
}

// Unmarshal decodes data into v. Records with duplicate map keys are
// rejected.
func Unmarshal(data []byte, v any) error {
	return decoding.Unmarshal(data, v)
}

// NewEncoder returns a deterministic stream encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encoding.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decoding.NewDecoder(r)
}
