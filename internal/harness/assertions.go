package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Entry // Full journal for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", entry)
		}
	}
	return buf.String()
}

// assertSentContains checks that some sent command carries every field
// of the expected message.
func assertSentContains(result *Result, a Assertion) error {
	want, err := ir.ParseMessage(a.Message)
	if err != nil {
		return err
	}
	wantFields := want.Fields()

	for _, msg := range result.Sent {
		if msg.Op != want.Op {
			continue
		}
		got := msg.Fields()
		if matchFields(got, wantFields, a.Message) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSentContains,
		Expected: fmt.Sprintf("sent %s", want),
		Actual:   "not found",
		Trace:    result.Trace,
	}
}

// matchFields compares only the keys the scenario spelled out.
func matchFields(got, want map[string]any, keys map[string]any) bool {
	for k := range keys {
		if !reflect.DeepEqual(got[k], want[k]) {
			return false
		}
	}
	return true
}

// assertSentOrder checks that the first occurrences of ops are ordered.
// Other commands may appear in between.
func assertSentOrder(result *Result, a Assertion) error {
	positions := make(map[string]int)
	for i, msg := range result.Sent {
		op := string(msg.Op)
		if _, seen := positions[op]; !seen {
			positions[op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertSentOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    result.Trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertSentOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: result.Trace,
			}
		}
	}
	return nil
}

// assertSentCount checks that op was sent exactly Count times.
func assertSentCount(result *Result, a Assertion) error {
	count := 0
	for _, msg := range result.Sent {
		if string(msg.Op) == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertSentCount,
			Expected: fmt.Sprintf("%s sent %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("sent %d times", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEntityState(h *Handles, a Assertion) error {
	e, err := h.Entity(a.Target)
	if err != nil {
		return err
	}
	want, _ := entity.ParseState(a.State)
	got, ok := stateOf(e)
	if !ok {
		return fmt.Errorf("handle %q has no lifecycle state", a.Target)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertEntityState,
			Expected: fmt.Sprintf("%s is %s", a.Target, want),
			Actual:   got.String(),
		}
	}
	return nil
}

func assertTagValue(h *Handles, a Assertion) error {
	t, err := h.Tag(a.Target)
	if err != nil {
		return err
	}
	want, err := ir.ParseValue(t.Kind(), a.Value)
	if err != nil {
		return err
	}
	if got := t.Value(); !ir.EqualValues(got, want) {
		return &AssertionError{
			Type:     AssertTagValue,
			Expected: fmt.Sprintf("%s = %v", a.Target, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertItemValue(h *Handles, a Assertion) error {
	ref, err := h.item(a.Target)
	if err != nil {
		return err
	}
	want, err := ir.ParseValue(ref.layer.Kind(), a.Value)
	if err != nil {
		return err
	}
	got, ok := ref.layer.Item(ref.id)
	if !ok {
		return &AssertionError{
			Type:     AssertItemValue,
			Expected: fmt.Sprintf("%s = %v", a.Target, want),
			Actual:   "item absent",
		}
	}
	if !ir.EqualValues(got, want) {
		return &AssertionError{
			Type:     AssertItemValue,
			Expected: fmt.Sprintf("%s = %v", a.Target, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertItemCount(h *Handles, a Assertion) error {
	l, err := h.Layer(a.Target)
	if err != nil {
		return err
	}
	if l.Len() != a.Count {
		return &AssertionError{
			Type:     AssertItemCount,
			Expected: fmt.Sprintf("%s holds %d items", a.Target, a.Count),
			Actual:   fmt.Sprintf("%d items", l.Len()),
		}
	}
	return nil
}

func assertBoundID(h *Handles, a Assertion) error {
	e, err := h.Entity(a.Target)
	if err != nil {
		return err
	}
	id, bound := boundID(e)
	if !bound {
		return &AssertionError{
			Type:     AssertBoundID,
			Expected: fmt.Sprintf("%s bound to %d", a.Target, a.ID),
			Actual:   "not bound",
		}
	}
	if id != a.ID {
		return &AssertionError{
			Type:     AssertBoundID,
			Expected: fmt.Sprintf("%s bound to %d", a.Target, a.ID),
			Actual:   fmt.Sprintf("bound to %d", id),
		}
	}
	return nil
}

func assertPendingCount(h *Handles, a Assertion) error {
	if got := h.registry.PendingCount(); got != a.Count {
		return &AssertionError{
			Type:     AssertPendingCount,
			Expected: fmt.Sprintf("%d pending nodes", a.Count),
			Actual:   fmt.Sprintf("%d pending nodes", got),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. Handles must not be in use by a running tick.
func EvaluateAssertions(result *Result, assertions []Assertion, h *Handles) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertSentContains:
			err = assertSentContains(result, a)
		case AssertSentOrder:
			err = assertSentOrder(result, a)
		case AssertSentCount:
			err = assertSentCount(result, a)
		case AssertEntityState:
			err = assertEntityState(h, a)
		case AssertTagValue:
			err = assertTagValue(h, a)
		case AssertItemValue:
			err = assertItemValue(h, a)
		case AssertItemCount:
			err = assertItemCount(h, a)
		case AssertBoundID:
			err = assertBoundID(h, a)
		case AssertPendingCount:
			err = assertPendingCount(h, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
