package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/store"
)

// ReplayResult is the outcome of rebuilding a replica from a journal.
type ReplayResult struct {
	Session string

	// Registry is the rebuilt replica. Its session discards commands.
	Registry *entity.Registry

	// Applied counts notifications the replica accepted; Rejected counts
	// those it refused with a lifecycle error.
	Applied  int
	Rejected int

	// Reactions are the commands the replica emitted while replaying,
	// such as subscribes to remotely created entities.
	Reactions []ir.Message

	// Unmatched are reactions with no counterpart among the journaled
	// outbound commands. A non-empty list means the journal was written
	// by a client that behaved differently.
	Unmatched []ir.Message
}

// Replay rebuilds a replica by feeding a fresh registry every journaled
// inbound notification in seq order. Local mutations are not replayed;
// their effects reach the replica through the confirmations the server
// sent back.
//
// The same journal always yields the same replica and reactions.
func Replay(ctx context.Context, s *store.Store, session string, opts ...entity.RegistryOption) (ReplayResult, error) {
	state, err := s.GetSessionState(ctx, session)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", session, err)
	}

	result := ReplayResult{Session: session}
	sink := entity.SessionFunc(func(msg ir.Message) error {
		result.Reactions = append(result.Reactions, msg)
		return nil
	})
	e := New(sink, WithClock(NewClock()), WithRegistryOptions(opts...))

	for _, entry := range state.Inbound {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.receive(entry.Message); err != nil {
			slog.Debug("replayed notification rejected",
				"error", err,
				"seq", entry.Seq,
				"op", entry.Message.Op,
			)
			result.Rejected++
			continue
		}
		result.Applied++
	}

	result.Registry = e.Registry()
	result.Unmatched = unmatched(result.Reactions, state.OutboundMessages())

	slog.Info("session replayed",
		"session", session,
		"applied", result.Applied,
		"rejected", result.Rejected,
		"unmatched", len(result.Unmatched),
	)
	return result, nil
}

// unmatched returns the reactions not covered by journaled, treating the
// journal as a multiset keyed by canonical message text.
func unmatched(reactions, journaled []ir.Message) []ir.Message {
	remaining := make(map[string]int, len(journaled))
	for _, m := range journaled {
		remaining[m.String()]++
	}
	out := []ir.Message{}
	for _, m := range reactions {
		key := m.String()
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		out = append(out, m)
	}
	return out
}
