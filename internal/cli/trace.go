package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Session   string
	Op        string // optional - filter to one op
	Direction string // optional - "in" or "out"
}

// TraceEntry is one journal line.
type TraceEntry struct {
	Seq       int64          `json:"seq"`
	Direction string         `json:"direction"`
	ID        string         `json:"id"`
	Message   map[string]any `json:"message"`
	text      string
}

// TraceResult holds a session dump.
type TraceResult struct {
	Session string       `json:"session"`
	Entries []TraceEntry `json:"entries"`
	Stats   TraceStats   `json:"stats"`
}

// TraceStats summarizes a session.
type TraceStats struct {
	Inbound    int   `json:"inbound"`
	Outbound   int   `json:"outbound"`
	LastSeq    int64 `json:"last_seq"`
	Gaps       int   `json:"gaps"`
	Connected  bool  `json:"connected"`
	Terminated bool  `json:"terminated"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Dump a session journal",
		Long: `Dump the journal of a session: every command sent and every
notification received, in sequence order.

Without --session, lists the journaled sessions.

Gaps count sequence numbers with no entry; each is a send the transport
rejected.

Examples:
  versync trace --db ./versync.db
  versync trace --db ./versync.db --session s1
  versync trace --db ./versync.db --session s1 --op node_create
  versync trace --db ./versync.db --session s1 --direction in --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: config journal)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to dump")
	cmd.Flags().StringVar(&opts.Op, "op", "", "filter to one op")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "filter to in or out")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Op != "" && opts.Direction != "" {
		return NewExitError(ExitCommandError, "--op and --direction are mutually exclusive")
	}
	if opts.Op != "" && !ir.KnownOp(ir.Op(opts.Op)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown op %q", opts.Op))
	}
	if opts.Direction != "" && opts.Direction != string(ir.Inbound) && opts.Direction != string(ir.Outbound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("direction must be %q or %q", ir.Inbound, ir.Outbound))
	}

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	out := opts.formatter(cmd)
	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		return out.Emit(sessions, func(w io.Writer) { writeSessions(w, sessions) })
	}

	state, err := st.GetSessionState(ctx, opts.Session)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	var entries []ir.Entry
	switch {
	case opts.Op != "":
		entries, err = st.ReadEntriesByOp(ctx, opts.Session, ir.Op(opts.Op))
	case opts.Direction != "":
		entries, err = st.ReadEntriesByDirection(ctx, opts.Session, ir.Direction(opts.Direction))
	default:
		entries, err = st.ReadEntries(ctx, opts.Session)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	result := TraceResult{
		Session: opts.Session,
		Entries: make([]TraceEntry, len(entries)),
		Stats: TraceStats{
			Inbound:    len(state.Inbound),
			Outbound:   len(state.Outbound),
			LastSeq:    state.LastSeq,
			Gaps:       state.Gaps,
			Connected:  state.Connected,
			Terminated: state.Terminated,
		},
	}
	for i, e := range entries {
		result.Entries[i] = TraceEntry{
			Seq:       e.Seq,
			Direction: string(e.Direction),
			ID:        e.ID,
			Message:   e.Message.Fields(),
			text:      e.String(),
		}
	}
	return out.Emit(result, func(w io.Writer) { writeTrace(w, result) })
}

// openJournal opens the --db journal, falling back to the configured one.
func openJournal(opts *RootOptions, path string) (*store.Store, error) {
	if path == "" {
		path = opts.Client.Journal
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no journal: pass --db or set journal in the config")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}

func writeSessions(w io.Writer, sessions []store.SessionInfo) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d entries (%d in, %d out), last seq %d", s.ID, s.Entries, s.Inbound, s.Outbound, s.LastSeq)
		if s.Label != "" {
			fmt.Fprintf(w, "\t%s", s.Label)
		}
		fmt.Fprintln(w)
	}
}

func writeTrace(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Session: %s\n\n", result.Session)
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "No entries.")
	}
	for _, e := range result.Entries {
		fmt.Fprintln(w, e.text)
	}
	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Inbound: %d, Outbound: %d, Last seq: %d, Gaps: %d\n", s.Inbound, s.Outbound, s.LastSeq, s.Gaps)
	switch {
	case s.Terminated:
		fmt.Fprintln(w, "Connection: terminated")
	case s.Connected:
		fmt.Fprintln(w, "Connection: accepted")
	default:
		fmt.Fprintln(w, "Connection: never accepted")
	}
}
