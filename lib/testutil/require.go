// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// T is the part of testing.TB the helpers call.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the first value sent on ch. The test fails if
// nothing arrives within timeout or ch is closed empty.
//
//	reference := testutil.RequireReceive(t, done, 60*time.Second, "hashing did not finish")
func RequireReceive[V any](t T, ch <-chan V, timeout time.Duration, context ...any) V {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed empty: %s", describe(context))
		}
		return v
	case <-deadline.C:
		t.Fatalf("nothing received within %v: %s", timeout, describe(context))
		var zero V
		return zero
	}
}

// RequireClosed fails the test unless ch is closed (or yields a value)
// within timeout.
//
//	testutil.RequireClosed(t, replicaCancelled, 5*time.Second, "losing replica not cancelled")
func RequireClosed(t T, ch <-chan struct{}, timeout time.Duration, context ...any) {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-ch:
	case <-deadline.C:
		t.Fatalf("channel still open after %v: %s", timeout, describe(context))
	}
}

// describe renders the optional context arguments: nothing, a single
// value, or a format string with its operands.
func describe(context []any) string {
	switch {
	case len(context) == 0:
		return "no context given"
	case len(context) == 1:
		return fmt.Sprint(context[0])
	}
	if format, ok := context[0].(string); ok {
		return fmt.Sprintf(format, context[1:]...)
	}
	return fmt.Sprint(context...)
}
