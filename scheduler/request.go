// Copyright 2026 The Gozo Authors.

package scheduler

import "time"

// Request is what the Bus Gateway hands to Admit. It is one of Schedule or
// Cancellation; the two are sealed to this package's own
// implementations via the unexported marker method.
type Request interface {
	isRequest()
}

// Schedule requests that a payload be emitted on ReplySubject at FireAt.
// ID, if non-empty, makes the schedule durable and enables overwrite.
type Schedule struct {
	ID           string // empty means ephemeral
	FireAt       time.Time
	ReplySubject string
	Payload      []byte
	Headers      map[string]string
}

func (Schedule) isRequest() {}

// Cancellation requests that the live schedule bearing ID, if any, be
// tombstoned. Cancelling an unknown or already-cancelled id is a no-op.
type Cancellation struct {
	ID string
}

func (Cancellation) isRequest() {}
