// Copyright 2026 The Gozo Authors.

// Package store is the Durable Store: a thin wrapper over a JetStream
// key/value bucket. Keys are schedule ids; values are record.Record
// encodings. There is exactly one writer, the Scheduler, by design.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gozoproject/gozo/record"
)

// Store is the Durable Store. The zero value is not usable; construct with
// Open.
type Store struct {
	kv nats.KeyValue
}

// Open binds to (creating if necessary) the named JetStream KV bucket.
// history=1 is sufficient: overwrite semantics only ever need the latest
// value for a given id.
func Open(nc *nats.Conn, bucket string) (*Store, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("store: jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("store: open bucket %q: %w", bucket, err)
	}

	return &Store{kv: kv}, nil
}

// Put creates or atomically overwrites the record for id. It is the write
// path invoked from Scheduler.Admit.
func (s *Store) Put(ctx context.Context, id string, fireAt time.Time, replySubject string, payload []byte, headers map[string]string) error {
	rec := record.Record{
		FireAt:       fireAt,
		ReplySubject: replySubject,
		Payload:      payload,
		Headers:      headers,
	}

	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", id, err)
	}

	if _, err := s.kv.Put(id, data); err != nil {
		return fmt.Errorf("store: put %q: %w", id, err)
	}
	return nil
}

// Delete removes the record for id. Deleting an absent key is not an error
// it is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(id); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	return nil
}

// Entry is one (id, record) pair returned by Iterate.
type Entry struct {
	ID     string
	Record record.Record
}

// Iterate enumerates every (id, record) pair currently in the bucket. Used
// once at startup by the Supervisor for recovery.
func (s *Store) Iterate(ctx context.Context) ([]Entry, error) {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, id := range keys {
		kve, err := s.kv.Get(id)
		if errors.Is(err, nats.ErrKeyNotFound) {
			continue // deleted between Keys() and Get(): not an error, just gone
		}
		if err != nil {
			return nil, fmt.Errorf("store: get %q: %w", id, err)
		}

		rec, err := record.Unmarshal(kve.Value())
		if err != nil {
			return nil, fmt.Errorf("store: decode %q: %w", id, err)
		}

		entries = append(entries, Entry{ID: id, Record: rec})
	}

	return entries, nil
}
