package entity

import (
	"errors"
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// Transition names a lifecycle operation for error reporting.
type Transition string

const (
	TransitionCreate         Transition = "create"
	TransitionDestroy        Transition = "destroy"
	TransitionReceiveCreate  Transition = "receive_create"
	TransitionReceiveDestroy Transition = "receive_destroy"
	TransitionSetValue       Transition = "set_value"
	TransitionLink           Transition = "link"
)

// StateError reports a lifecycle transition that is illegal from the
// entity's current state. It indicates a caller bug and is never retried.
type StateError struct {
	Kind       ir.EntityKind
	State      State
	Transition Transition
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: illegal %s from state %s", e.Kind, e.Transition, e.State)
}

// IsStateError returns true if err is (or wraps) a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// MarkerError reports a second pending entity with the same custom-type
// marker inside one owner scope.
type MarkerError struct {
	Scope  ir.Scope
	Marker ir.CustomType
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("duplicate pending marker %d in %s", e.Marker, e.Scope)
}

// IsMarkerError returns true if err is (or wraps) a MarkerError.
func IsMarkerError(err error) bool {
	var me *MarkerError
	return errors.As(err, &me)
}

var (
	// ErrUnknownItem is returned when a layer item id is not present.
	ErrUnknownItem = errors.New("unknown layer item")

	// ErrLinkCycle is returned when relinking would make a node its own ancestor.
	ErrLinkCycle = errors.New("link would create a cycle")

	// ErrForeignOwner is returned when an entity is attached to a parent from
	// another registry or node.
	ErrForeignOwner = errors.New("entity belongs to another owner")

	// ErrItemsExhausted is returned when a node has no unused layer item id left.
	ErrItemsExhausted = errors.New("layer item ids exhausted")
)
