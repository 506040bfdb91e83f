package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/versync/internal/engine"
	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
}

// ReplaySessionResult is the replay outcome of one session.
type ReplaySessionResult struct {
	Session   string   `json:"session"`
	Applied   int      `json:"applied"`
	Rejected  int      `json:"rejected"`
	Nodes     int      `json:"nodes"`
	Reactions int      `json:"reactions"`
	Unmatched []string `json:"unmatched"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions   []ReplaySessionResult `json:"sessions"`
	Consistent bool                  `json:"consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild replicas from journaled notifications",
		Long: `Rebuild a replica for each journaled session by feeding a fresh
registry every inbound notification in sequence order.

The commands the rebuilt replica emits (subscribes, deferred creates) are
compared with the journaled outbound commands. A reaction the journal has
no record of means the journal was written by a client that behaved
differently.

The registry uses the configured priority and catalog.

Exit codes:
  0 - Every reaction is journaled
  1 - Unmatched reactions found
  2 - Command error (journal not found, etc.)

Examples:
  versync replay --db ./versync.db
  versync replay --db ./versync.db --session s1
  versync replay --db ./versync.db --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: config journal)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay one session only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	regOpts, err := opts.Client.RegistryOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build registry", err)
	}

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var sessions []string
	if opts.Session != "" {
		sessions = []string{opts.Session}
	} else {
		infos, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, info := range infos {
			sessions = append(sessions, info.ID)
		}
	}

	out := opts.formatter(cmd)
	result := ReplayResult{Sessions: make([]ReplaySessionResult, 0, len(sessions)), Consistent: true}
	for _, session := range sessions {
		out.VerboseLog("replaying %s", session)
		sr, err := replaySession(ctx, st, session, regOpts)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", session), err)
		}
		if len(sr.Unmatched) > 0 {
			result.Consistent = false
		}
		result.Sessions = append(result.Sessions, sr)
	}

	if !result.Consistent {
		msg := "replay produced commands missing from the journal"
		if err := out.Fail("E_REPLAY_UNMATCHED", msg, result, func(w io.Writer) { writeReplay(w, result) }); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Emit(result, func(w io.Writer) { writeReplay(w, result) })
}

func replaySession(ctx context.Context, st *store.Store, session string, opts []entity.RegistryOption) (ReplaySessionResult, error) {
	r, err := engine.Replay(ctx, st, session, opts...)
	if err != nil {
		return ReplaySessionResult{}, err
	}
	sr := ReplaySessionResult{
		Session:   session,
		Applied:   r.Applied,
		Rejected:  r.Rejected,
		Nodes:     len(r.Registry.NodeIDs()),
		Reactions: len(r.Reactions),
		Unmatched: make([]string, len(r.Unmatched)),
	}
	for i, m := range r.Unmatched {
		sr.Unmatched[i] = m.String()
	}
	return sr, nil
}

func writeReplay(w io.Writer, result ReplayResult) {
	if len(result.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	for _, s := range result.Sessions {
		mark := "✓"
		if len(s.Unmatched) > 0 {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d applied, %d rejected, %d nodes, %d reactions\n",
			mark, s.Session, s.Applied, s.Rejected, s.Nodes, s.Reactions)
		for _, m := range s.Unmatched {
			fmt.Fprintf(w, "  unmatched: %s\n", m)
		}
	}
}
