// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration shared by every
// on-disk format in swarmhash that is not a protocol wire format.
//
// The boundary is:
//
//   - Bit-exact binary layouts for anything that is hashed or sent to
//     the network: chunks, intermediate chunks, manifest nodes, postage
//     stamps. Those are hand-laid-out in lib/swarm, lib/pipeline,
//     lib/manifest and lib/postage.
//   - CBOR for local state: filesystem chunk store records and stamp
//     store snapshots.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical record always produces identical bytes and checksums
// over encoded records are stable.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types use `cbor` struct tags when they are only ever stored as CBOR,
// and `json` tags when they are also printed as JSON by the CLI.
package codec
