package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/versync/internal/config"
	"github.com/roach88/versync/internal/engine"
	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
	"github.com/roach88/versync/internal/store"
	"github.com/roach88/versync/internal/testutil"
)

// DefaultTokenPrefix prefixes correlation tokens when a scenario names none.
const DefaultTokenPrefix = "tok"

// errInjected is returned by the transport for ops under fail_on.
var errInjected = errors.New("injected send failure")

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is the journal of the session in sequence order.
	Trace []ir.Entry `json:"-"`

	// Sent holds the commands the transport accepted, in order.
	Sent []ir.Message `json:"-"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// harness runs one scenario against a fresh engine.
type harness struct {
	engine    *engine.Engine
	transport *testutil.RecordingSession
	store     *store.Store
	handles   *Handles
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal with sequential
// correlation tokens, so identical scenarios produce identical traces.
// Every step is applied by exactly one engine tick.
//
// Errors are returned for broken scenarios (unknown handles, a catalog
// that does not load); failed expectations land in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	regOpts, err := registryOptions(scenario)
	if err != nil {
		return nil, err
	}

	prefix := scenario.Tokens
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}

	transport := testutil.NewRecordingSession()
	eng := engine.New(transport,
		engine.WithJournal(st, scenario.Name, scenario.Description),
		engine.WithTokens(testutil.NewSequenceTokens(prefix)),
		engine.WithRegistryOptions(regOpts...),
	)
	if err := eng.Resume(ctx); err != nil {
		return nil, err
	}

	h := &harness{
		engine:    eng,
		transport: transport,
		store:     st,
		handles:   newHandles(eng.Registry()),
	}

	result := NewResult()
	if scenario.Connect != nil {
		accept := ir.Message{
			Op:   ir.OpConnectAccept,
			User: ir.UserID(scenario.Connect.User),
			Node: ir.NodeID(scenario.Connect.Avatar),
		}
		if err := h.receive(ctx, accept); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.step(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if result.Trace, err = st.ReadEntries(ctx, scenario.Name); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	state, err := st.GetSessionState(ctx, scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	result.Sent = state.OutboundMessages()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h.handles) {
		result.AddError(msg)
	}
	return result, nil
}

func registryOptions(scenario *Scenario) ([]entity.RegistryOption, error) {
	client := config.Client{Priority: int(ir.DefaultPriority), Catalog: scenario.Catalog}
	if scenario.Priority != 0 {
		client.Priority = scenario.Priority
	}
	return client.RegistryOptions()
}

// step runs one scenario step.
func (h *harness) step(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.FailOn != "":
		h.transport.FailOn(ir.Op(step.FailOn), errInjected)
		return nil
	case step.Restore != "":
		h.transport.FailOn(ir.Op(step.Restore), nil)
		return nil
	case step.Receive != nil:
		msg, err := ir.ParseMessage(step.Receive)
		if err != nil {
			return err
		}
		return h.receive(ctx, msg)
	}

	mutate, bindAs, err := h.prepare(step)
	if err != nil {
		return err
	}

	var stepErr error
	var created any
	h.engine.Submit(func(r *entity.Registry) error {
		created, stepErr = mutate(r)
		return stepErr
	})
	if _, err := h.engine.Tick(ctx); err != nil {
		return err
	}

	if stepErr == nil {
		if err := bindAs(created); err != nil {
			return err
		}
	}
	slog.Debug("step applied", "step", i, "local", step.Local, "error", stepErr)

	if msg := checkExpectedError(step, stepErr); msg != "" {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Local, msg))
	}
	return nil
}

// receive delivers one notification and ticks it through.
func (h *harness) receive(ctx context.Context, msg ir.Message) error {
	if !h.engine.Deliver(msg) {
		return engine.ErrStopped
	}
	_, err := h.engine.Tick(ctx)
	return err
}

type mutation func(r *entity.Registry) (any, error)

// prepare resolves a local step's handles and returns the mutation to run
// inside the tick, plus the binder for its result.
func (h *harness) prepare(step Step) (mutation, func(any) error, error) {
	ct := ir.CustomType(step.CustomType)
	bindEntity := func(e any) error { return h.handles.bind(step.As, e) }

	switch step.Local {
	case ActionCreateNode:
		var parent *entity.Node
		if step.Parent != "" {
			p, err := h.handles.Node(step.Parent)
			if err != nil {
				return nil, nil, err
			}
			parent = p
		}
		return func(r *entity.Registry) (any, error) {
			return r.NewNode(parent, ct)
		}, bindEntity, nil

	case ActionCreateTagGroup:
		n, err := h.handles.Node(step.Target)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			return n.NewTagGroup(ct)
		}, bindEntity, nil

	case ActionCreateTag:
		tg, err := h.handles.TagGroup(step.Target)
		if err != nil {
			return nil, nil, err
		}
		kind, err := optionalKind(step.Kind)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			v, err := ir.ParseValue(kind, step.Value)
			if err != nil {
				return nil, err
			}
			return tg.NewTag(ct, v)
		}, bindEntity, nil

	case ActionSetTag:
		t, err := h.handles.Tag(step.Target)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			v, err := ir.ParseValue(t.Kind(), step.Value)
			if err != nil {
				return nil, err
			}
			return nil, t.SetValue(v)
		}, noBind, nil

	case ActionCreateLayer:
		n, err := h.handles.Node(step.Target)
		if err != nil {
			return nil, nil, err
		}
		var parent *entity.Layer
		if step.Parent != "" {
			if parent, err = h.handles.Layer(step.Parent); err != nil {
				return nil, nil, err
			}
		}
		kind, err := ir.ParseValueKind(step.Kind)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			return n.NewLayer(parent, ct, kind, step.Count)
		}, bindEntity, nil

	case ActionAddItem:
		l, err := h.handles.Layer(step.Target)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			v, err := ir.ParseValue(l.Kind(), step.Value)
			if err != nil {
				return nil, err
			}
			return l.Add(v)
		}, func(id any) error {
			return h.handles.bindItem(step.As, l, id.(ir.ItemID))
		}, nil

	case ActionSetItem, ActionRemoveItem:
		ref, err := h.handles.item(step.Target)
		if err != nil {
			return nil, nil, err
		}
		if step.Local == ActionRemoveItem {
			return func(*entity.Registry) (any, error) {
				return nil, ref.layer.Remove(ref.id)
			}, noBind, nil
		}
		return func(*entity.Registry) (any, error) {
			v, err := ir.ParseValue(ref.layer.Kind(), step.Value)
			if err != nil {
				return nil, err
			}
			return nil, ref.layer.Set(ref.id, v)
		}, noBind, nil

	case ActionSetPriority:
		n, err := h.handles.Node(step.Target)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			return nil, n.SetPriority(ir.Priority(step.Priority))
		}, noBind, nil

	case ActionLink:
		n, err := h.handles.Node(step.Target)
		if err != nil {
			return nil, nil, err
		}
		parent, err := h.handles.Node(step.Parent)
		if err != nil {
			return nil, nil, err
		}
		return func(*entity.Registry) (any, error) {
			return nil, n.Link(parent)
		}, noBind, nil

	case ActionDestroy:
		e, err := h.handles.Entity(step.Target)
		if err != nil {
			return nil, nil, err
		}
		d, ok := e.(interface{ Destroy() error })
		if !ok {
			return nil, nil, fmt.Errorf("handle %q cannot be destroyed", step.Target)
		}
		return func(*entity.Registry) (any, error) {
			return nil, d.Destroy()
		}, noBind, nil

	default:
		return nil, nil, fmt.Errorf("unknown local action %q", step.Local)
	}
}

func noBind(any) error { return nil }

func optionalKind(s string) (ir.ValueKind, error) {
	if s == "" {
		return ir.KindInvalid, nil
	}
	return ir.ParseValueKind(s)
}

// checkExpectedError compares a mutation's error with the step's
// expect_error class. Returns "" when they agree.
func checkExpectedError(step Step, err error) string {
	if step.ExpectError == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}
	if err == nil {
		return fmt.Sprintf("expected %s error, got none", step.ExpectError)
	}

	var matched bool
	switch step.ExpectError {
	case ErrorClassState:
		matched = entity.IsStateError(err)
	case ErrorClassMarker:
		matched = entity.IsMarkerError(err)
	case ErrorClassValue:
		matched = ir.IsValueError(err)
	case ErrorClassAny:
		matched = true
	}
	if !matched {
		return fmt.Sprintf("expected %s error, got: %v", step.ExpectError, err)
	}
	return ""
}
