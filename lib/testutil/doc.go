// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the wall-clock safety valves for concurrency
// tests: [RequireReceive] and [RequireClosed] fail a test that would
// otherwise hang on a channel. Everything else in the suite runs on
// the fake clock from lib/clock.
package testutil
