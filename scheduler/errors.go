// Copyright 2026 The Gozo Authors.

package scheduler

import "errors"

// Sentinel errors naming the failure classes Gozo distinguishes. Wrap one
// of these with fmt.Errorf("...: %w", ErrX) so callers can errors.Is
// against a stable value instead of matching strings.
var (
	// ErrParse marks a malformed header or missing required field. The
	// request is dropped; the caller should log and continue.
	ErrParse = errors.New("gozo: parse error")

	// ErrStore marks a Durable Store failure. On admission this fails the
	// admission outright; after firing it is logged and the schedule is
	// still considered fired.
	ErrStore = errors.New("gozo: store error")

	// ErrEmit marks a bus publish failure at fire time. Logged; no retry.
	ErrEmit = errors.New("gozo: emit error")

	// ErrFatal marks an unrecoverable condition: lost connection, invalid
	// configuration, or a failed recovery read. The process should exit
	// non-zero so a supervisor (outside this one) restarts it.
	ErrFatal = errors.New("gozo: fatal error")
)
