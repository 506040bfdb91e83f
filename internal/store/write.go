package store

import (
	"context"
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// WriteSession registers a journaled session. Uses ON CONFLICT(id) DO
// NOTHING, so registering an existing session keeps its original label.
func (s *Store) WriteSession(ctx context.Context, id, label string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, journal_version, client_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, label, ir.JournalVersion, ir.ClientVersion)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEntry appends an entry to the journal.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - the same entry written
// twice is silently ignored. A different message at an already used
// (session, seq) fails the UNIQUE constraint.
//
// The session row is created if missing, in the same transaction.
func (s *Store) WriteEntry(ctx context.Context, e ir.Entry) error {
	if e.ID == "" {
		return fmt.Errorf("write entry: missing id")
	}
	if _, err := ir.ParseDirection(string(e.Direction)); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	msgJSON, err := marshalMessage(e.Message)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write entry: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, journal_version, client_version)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.Session, e.JournalVersion, e.ClientVersion); err != nil {
		return fmt.Errorf("write entry: session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries
		(id, session, seq, direction, op, message, journal_version, client_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.Session,
		e.Seq,
		string(e.Direction),
		string(e.Message.Op),
		msgJSON,
		e.JournalVersion,
		e.ClientVersion,
	); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write entry: commit: %w", err)
	}
	return nil
}
