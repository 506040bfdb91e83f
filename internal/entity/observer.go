package entity

import "github.com/roach88/versync/internal/ir"

// ChangeType names a replica change reported to observers.
type ChangeType string

const (
	ChangeBound     ChangeType = "bound"
	ChangeDestroyed ChangeType = "destroyed"
	ChangeValue     ChangeType = "value"
	ChangeItemSet   ChangeType = "item_set"
	ChangeItemUnset ChangeType = "item_unset"
	ChangeLinked    ChangeType = "linked"
	ChangePriority  ChangeType = "priority"
	ChangeReset     ChangeType = "reset"
)

// Change describes one applied notification. Only the ids relevant to
// Kind are set.
type Change struct {
	Type     ChangeType
	Kind     ir.EntityKind
	Node     ir.NodeID
	TagGroup ir.TagGroupID
	Tag      ir.TagID
	Layer    ir.LayerID
	Item     ir.ItemID
}

// Observer receives replica changes after they are applied.
type Observer interface {
	Observe(c Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c Change)

// Observe calls f(c).
func (f ObserverFunc) Observe(c Change) { f(c) }
