// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by postage stamp
// timestamps and by the replica-racing chunk store.
//
// Tests use Fake, which stands still until Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, _ := chunkstore.NewRaceStore(replicas, chunkstore.RaceStoreOptions{Delay: delay, Clock: c})
//	go store.Get(ctx, hash)
//	c.WaitForTimers(1) // the second replica's start is scheduled
//	c.Advance(delay)
package clock
