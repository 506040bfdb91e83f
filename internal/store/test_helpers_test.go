package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/versync/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds an entry with its content-addressed id.
func createTestEntry(t *testing.T, session string, dir ir.Direction, seq int64, msg ir.Message) ir.Entry {
	t.Helper()
	e, err := ir.NewEntry(session, dir, seq, msg)
	if err != nil {
		t.Fatalf("NewEntry() failed: %v", err)
	}
	return e
}

// writeTestEntries journals msgs with consecutive seqs starting at 1.
func writeTestEntries(t *testing.T, s *Store, session string, dirs []ir.Direction, msgs []ir.Message) []ir.Entry {
	t.Helper()
	if len(dirs) != len(msgs) {
		t.Fatalf("writeTestEntries: %d directions for %d messages", len(dirs), len(msgs))
	}
	entries := make([]ir.Entry, len(msgs))
	for i, msg := range msgs {
		entries[i] = createTestEntry(t, session, dirs[i], int64(i+1), msg)
		if err := s.WriteEntry(t.Context(), entries[i]); err != nil {
			t.Fatalf("WriteEntry(%d) failed: %v", i, err)
		}
	}
	return entries
}
