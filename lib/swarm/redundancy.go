// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import "fmt"

// RedundancyLevel selects how many erasure-coded parity chunks are
// added per intermediate chunk. Only RedundancyNone is implemented by
// the hashing pipeline; the other levels are protocol values that the
// pipeline builder rejects with ErrNotImplemented.
type RedundancyLevel uint8

const (
	RedundancyNone RedundancyLevel = iota
	RedundancyMedium
	RedundancyStrong
	RedundancyInsane
	RedundancyParanoid
)

// String returns the lowercase name of the level.
func (level RedundancyLevel) String() string {
	switch level {
	case RedundancyNone:
		return "none"
	case RedundancyMedium:
		return "medium"
	case RedundancyStrong:
		return "strong"
	case RedundancyInsane:
		return "insane"
	case RedundancyParanoid:
		return "paranoid"
	default:
		return fmt.Sprintf("unknown(%d)", level)
	}
}

// ParseRedundancyLevel parses the name produced by String. The empty
// string means RedundancyNone.
func ParseRedundancyLevel(name string) (RedundancyLevel, error) {
	switch name {
	case "", "none":
		return RedundancyNone, nil
	case "medium":
		return RedundancyMedium, nil
	case "strong":
		return RedundancyStrong, nil
	case "insane":
		return RedundancyInsane, nil
	case "paranoid":
		return RedundancyParanoid, nil
	default:
		return 0, fmt.Errorf("unknown redundancy level: %q", name)
	}
}
