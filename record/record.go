// Copyright 2026 The Gozo Authors.

// Package record defines the persisted projection of a schedule: the value
// half of the Durable Store's (id, value) pairs.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the durable, on-the-wire shape of a schedule. It carries
// everything needed to re-admit a schedule after a restart.
//
// Encoding is JSON: self-describing and stable across the small,
// rarely-changing field set below, and it round-trips through a KV bucket
// without any schema migration machinery.
type Record struct {
	FireAt       time.Time         `json:"fire_at"`
	ReplySubject string            `json:"reply_subject"`
	Payload      []byte            `json:"payload"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Marshal encodes r for storage in the Durable Store.
func (r Record) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a Record previously produced by Marshal.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("record: unmarshal: %w", err)
	}
	return r, nil
}
