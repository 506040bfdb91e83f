package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionInfo summarizes one journaled session.
type SessionInfo struct {
	ID       string
	Label    string
	Entries  int
	Inbound  int
	Outbound int
	LastSeq  int64
}

// ReadEntries returns all entries of a session.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadEntries(ctx context.Context, session string) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, seq, direction, message, journal_version, client_version
		FROM entries
		WHERE session = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	return collectEntries(rows)
}

// ReadEntriesByDirection returns the entries of a session that travelled
// in one direction, in journal order.
func (s *Store) ReadEntriesByDirection(ctx context.Context, session string, dir ir.Direction) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, seq, direction, message, journal_version, client_version
		FROM entries
		WHERE session = ? AND direction = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, session, string(dir))
	if err != nil {
		return nil, fmt.Errorf("query %s entries: %w", dir, err)
	}
	return collectEntries(rows)
}

// ReadEntriesByOp returns the entries of a session carrying op.
func (s *Store) ReadEntriesByOp(ctx context.Context, session string, op ir.Op) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, seq, direction, message, journal_version, client_version
		FROM entries
		WHERE session = ? AND op = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, session, string(op))
	if err != nil {
		return nil, fmt.Errorf("query %s entries: %w", op, err)
	}
	return collectEntries(rows)
}

// ReadEntry returns a single entry by id.
// Returns ErrNotFound if no entry exists with that id.
func (s *Store) ReadEntry(ctx context.Context, id string) (ir.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session, seq, direction, message, journal_version, client_version
		FROM entries
		WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// ListSessions returns every journaled session ordered by id.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.label,
		       COUNT(e.id),
		       COALESCE(SUM(CASE WHEN e.direction = 'in' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN e.direction = 'out' THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(e.seq), 0)
		FROM sessions s
		LEFT JOIN entries e ON e.session = s.id
		GROUP BY s.id, s.label
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Label, &info.Entries, &info.Inbound, &info.Outbound, &info.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LastSeq returns the highest seq journaled for a session, or 0.
// Used to resume the engine clock after a restart.
func (s *Store) LastSeq(ctx context.Context, session string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM entries WHERE session = ?
	`, session).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (ir.Entry, error) {
	var (
		e       ir.Entry
		dir     string
		msgJSON string
	)
	if err := r.Scan(&e.ID, &e.Session, &e.Seq, &dir, &msgJSON, &e.JournalVersion, &e.ClientVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Entry{}, err
		}
		return ir.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	var err error
	if e.Direction, err = ir.ParseDirection(dir); err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	if e.Message, err = unmarshalMessage(msgJSON); err != nil {
		return ir.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]ir.Entry, error) {
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
