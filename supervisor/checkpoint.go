// Copyright 2026 The Gozo Authors.

package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gozoproject/gozo/store"
)

// writeCheckpoint snapshots what Iterate returned at recovery time into dir,
// so an operator has a forensic artifact if recovery produces something
// unexpected. It
// is written to a uuid-named temp file and renamed into place so a reader
// never observes a partially-written snapshot.
func writeCheckpoint(dir string, entries []store.Entry) error {
	if dir == "" {
		return nil
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %q: %w", dir, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}

	final := filepath.Join(dir, "recovery.json")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}

	return nil
}
