package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/store"
)

// Engine owns an entity.Registry and serializes all access to it.
//
// Thread-safety model:
//   - Do, Submit, Deliver, Stop: safe from any goroutine
//   - Tick, Run: must be called from exactly one goroutine
//   - Registry: only from inside a mutation or while nothing ticks
type Engine struct {
	transport entity.Session
	registry  *entity.Registry
	clock     *Clock
	tokens    entity.TokenGenerator
	regOpts   []entity.RegistryOption

	journal *store.Store
	session string
	label   string

	local   *eventQueue
	inbound *eventQueue

	// ctx is the context of the tick in progress; used for journal writes
	// made from inside the replica's send path.
	ctx context.Context
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal appends every stamped message to s under session id.
func WithJournal(s *store.Store, session, label string) Option {
	return func(e *Engine) {
		e.journal = s
		e.session = session
		e.label = label
	}
}

// WithTokens sets the correlation token generator for local node creates.
//
// Default: UUIDv7Generator.
func WithTokens(g entity.TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithClock sets the logical clock. Used for replay to continue a
// journaled sequence.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRegistryOptions passes options through to the replica.
func WithRegistryOptions(opts ...entity.RegistryOption) Option {
	return func(e *Engine) {
		e.regOpts = append(e.regOpts, opts...)
	}
}

// New creates an Engine whose replica sends commands to transport.
func New(transport entity.Session, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		clock:     NewClock(),
		tokens:    UUIDv7Generator{},
		local:     newEventQueue(),
		inbound:   newEventQueue(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}

	regOpts := append([]entity.RegistryOption{entity.WithTokens(e.tokens)}, e.regOpts...)
	e.registry = entity.NewRegistry(entity.SessionFunc(e.send), regOpts...)
	return e
}

// Resume registers the journal session and advances the clock past the
// last journaled seq. Call before the first tick when journaling into an
// existing session.
func (e *Engine) Resume(ctx context.Context) error {
	if e.journal == nil {
		return nil
	}
	if err := e.journal.WriteSession(ctx, e.session, e.label); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	last, err := e.journal.LastSeq(ctx, e.session)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if last > e.clock.Current() {
		e.clock = NewClockAt(last)
	}
	slog.Info("journal resumed", "session", e.session, "seq", last)
	return nil
}

// Submit queues a local mutation without waiting for it.
// Returns false if the engine has been stopped.
func (e *Engine) Submit(fn func(*entity.Registry) error) bool {
	return e.local.Enqueue(Event{Type: EventTypeLocal, Mutate: fn})
}

// Do queues a local mutation and waits until a tick has applied it.
// Returns the mutation's error, ErrStopped, or the context's error.
func (e *Engine) Do(ctx context.Context, fn func(*entity.Registry) error) error {
	done := make(chan error, 1)
	if !e.local.Enqueue(Event{Type: EventTypeLocal, Mutate: fn, done: done}) {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Deliver queues a notification received from the server.
// Returns false if the engine has been stopped.
func (e *Engine) Deliver(msg ir.Message) bool {
	return e.inbound.Enqueue(Event{Type: EventTypeInbound, Message: &msg})
}

// Tick applies every queued local mutation, then every queued inbound
// notification. Returns the number of events processed.
//
// Failures are logged and processing continues; only a cancelled context
// stops a tick early.
func (e *Engine) Tick(ctx context.Context) (int, error) {
	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	n := 0
	for _, q := range []*eventQueue{e.local, e.inbound} {
		for {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			event, ok := q.TryDequeue()
			if !ok {
				break
			}
			if err := e.processEvent(event); err != nil {
				logEventError(event, err)
			}
			n++
		}
	}
	return n, nil
}

// Run ticks whenever events arrive.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if _, err := e.Tick(ctx); err != nil {
			slog.Info("engine stopping: context cancelled")
			e.Stop()
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.Stop()
			return ctx.Err()

		case <-e.local.Wait():
		case <-e.inbound.Wait():
		}

		// Closed signal channels fire immediately; stop once both queues
		// are closed and drained.
		if e.local.Closed() && e.inbound.Closed() && e.local.Len() == 0 && e.inbound.Len() == 0 {
			slog.Info("engine stopping: queues closed")
			return nil
		}
	}
}

// Stop closes both queues. Run returns after draining what was queued.
func (e *Engine) Stop() {
	e.local.Close()
	e.inbound.Close()
}

// Registry returns the replica.
func (e *Engine) Registry() *entity.Registry {
	return e.registry
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the number of queued local and inbound events.
func (e *Engine) QueueLen() (local, inbound int) {
	return e.local.Len(), e.inbound.Len()
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from the tick goroutine.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventTypeLocal:
		if event.Mutate == nil {
			return fmt.Errorf("local event missing mutation")
		}
		err := event.Mutate(e.registry)
		if event.done != nil {
			event.done <- err
		}
		return err

	case EventTypeInbound:
		if event.Message == nil {
			return fmt.Errorf("inbound event missing message")
		}
		return e.receive(*event.Message)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// receive stamps, journals and applies one notification.
func (e *Engine) receive(msg ir.Message) error {
	seq := e.clock.Next()
	slog.Debug("received", "op", msg.Op, "node", msg.Node, "seq", seq)

	if err := e.record(ir.Inbound, seq, msg); err != nil {
		slog.Error("journal write failed", "error", err, "op", msg.Op, "seq", seq)
	}
	if err := e.registry.Receive(msg); err != nil {
		return &RuntimeError{Code: ErrCodeReceiveFailed, Op: msg.Op, Seq: seq, Err: err}
	}
	return nil
}

// send is the replica's Session: it stamps the command, forwards it to
// the transport and journals it once accepted.
func (e *Engine) send(msg ir.Message) error {
	seq := e.clock.Next()
	if err := e.transport.Send(msg); err != nil {
		return &RuntimeError{Code: ErrCodeSendFailed, Op: msg.Op, Seq: seq, Err: err}
	}
	// The command is already on the wire; a journal failure must not make
	// the replica believe the send failed.
	if err := e.record(ir.Outbound, seq, msg); err != nil {
		slog.Error("journal write failed", "error", err, "op", msg.Op, "seq", seq)
	}
	return nil
}

func (e *Engine) record(dir ir.Direction, seq int64, msg ir.Message) error {
	if e.journal == nil {
		return nil
	}
	entry, err := ir.NewEntry(e.session, dir, seq, msg)
	if err != nil {
		return &RuntimeError{Code: ErrCodeJournalFailed, Op: msg.Op, Seq: seq, Err: err}
	}
	if err := e.journal.WriteEntry(e.ctx, entry); err != nil {
		return &RuntimeError{Code: ErrCodeJournalFailed, Op: msg.Op, Seq: seq, Err: err}
	}
	return nil
}

// logEventError logs an event processing failure with full context.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeLocal:
		slog.Warn("local mutation failed", "error", err)

	case EventTypeInbound:
		if event.Message != nil {
			slog.Error("notification processing failed",
				"error", err,
				"op", event.Message.Op,
				"node", event.Message.Node,
			)
		} else {
			slog.Error("notification processing failed",
				"error", err,
				"note", "message was nil",
			)
		}

	default:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
		)
	}
}
