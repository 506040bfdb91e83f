package store

import (
	"context"
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// SessionState summarizes a journaled session for recovery and replay.
type SessionState struct {
	Session  string
	Inbound  []ir.Entry
	Outbound []ir.Entry
	LastSeq  int64

	// Connected is true once a connect_accept was received.
	Connected bool
	// Terminated is true once a connect_terminate was received.
	Terminated bool
	// Gaps counts seq values with no entry, from 1 up to LastSeq. The
	// engine consumes a seq for every send it attempts, so a rejected send
	// shows up here.
	Gaps int
}

// GetSessionState reads every entry of a session and splits them by
// direction. Returns ErrNotFound for an unknown session.
func (s *Store) GetSessionState(ctx context.Context, session string) (SessionState, error) {
	state := SessionState{Session: session}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, session,
	).Scan(&exists); err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}
	if exists == 0 {
		return state, fmt.Errorf("get session state %s: %w", session, ErrNotFound)
	}

	entries, err := s.ReadEntries(ctx, session)
	if err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}

	state.Inbound = []ir.Entry{}
	state.Outbound = []ir.Entry{}
	var prev int64
	for _, e := range entries {
		if e.Seq > prev+1 {
			state.Gaps += int(e.Seq - prev - 1)
		}
		prev = e.Seq
		state.LastSeq = e.Seq

		switch e.Direction {
		case ir.Inbound:
			state.Inbound = append(state.Inbound, e)
			switch e.Message.Op {
			case ir.OpConnectAccept:
				state.Connected = true
			case ir.OpConnectTerminate:
				state.Terminated = true
			}
		case ir.Outbound:
			state.Outbound = append(state.Outbound, e)
		}
	}
	return state, nil
}

// InboundMessages returns the inbound messages in journal order.
func (st SessionState) InboundMessages() []ir.Message {
	msgs := make([]ir.Message, len(st.Inbound))
	for i, e := range st.Inbound {
		msgs[i] = e.Message
	}
	return msgs
}

// OutboundMessages returns the outbound messages in journal order.
func (st SessionState) OutboundMessages() []ir.Message {
	msgs := make([]ir.Message, len(st.Outbound))
	for i, e := range st.Outbound {
		msgs[i] = e.Message
	}
	return msgs
}
