package entity

import "github.com/roach88/versync/internal/ir"

// State is the lifecycle state of an entity.
type State uint8

const (
	Reserved State = iota
	Creating
	Created
	Assumed
	WantDestroy
	Destroying
	Destroyed
)

var stateNames = [...]string{
	Reserved:    "reserved",
	Creating:    "creating",
	Created:     "created",
	Assumed:     "assumed",
	WantDestroy: "want_destroy",
	Destroying:  "destroying",
	Destroyed:   "destroyed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ParseState converts a state name back to a State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Reserved, false
}

// hooks is the capability set each entity kind supplies to EntityState.
// send* methods may defer the command when the owner has no server id yet.
type hooks interface {
	entityKind() ir.EntityKind
	sendCreate() error
	sendDestroy() error
	sendSubscribe() error
	clean()
}

// EntityState is the lifecycle shared by Nodes, TagGroups, Tags and Layers.
// It is embedded by value in every entity.
type EntityState struct {
	state      State
	bound      bool
	subscribed bool
	version    uint32
	crc32      uint32

	// flushed is set once everything queued behind the confirmation
	// has been sent.
	flushed bool
}

// State returns the current lifecycle state.
func (s *EntityState) State() State { return s.state }

// Bound reports whether the server has assigned the entity an id.
func (s *EntityState) Bound() bool { return s.bound }

// Subscribed reports whether a subscribe command has been sent.
func (s *EntityState) Subscribed() bool { return s.subscribed }

// Version returns the last known data version.
func (s *EntityState) Version() uint32 { return s.version }

// CRC32 returns the last known change checksum.
func (s *EntityState) CRC32() uint32 { return s.crc32 }

// SetVersion records the data version and checksum carried by the next
// subscribe, letting the server skip unchanged data.
func (s *EntityState) SetVersion(version, crc32 uint32) {
	s.version = version
	s.crc32 = crc32
}

// live reports whether commands addressed to the entity's id may be sent.
func (s *EntityState) live() bool {
	return s.bound && (s.state == Created || s.state == Assumed)
}

func (s *EntityState) create(h hooks) error {
	if s.state != Reserved {
		return &StateError{Kind: h.entityKind(), State: s.state, Transition: TransitionCreate}
	}
	if !s.bound {
		if err := h.sendCreate(); err != nil {
			return err
		}
		s.state = Creating
		return nil
	}
	if err := h.sendSubscribe(); err != nil {
		return err
	}
	s.subscribed = true
	s.state = Assumed
	return nil
}

func (s *EntityState) destroy(h hooks) error {
	switch s.state {
	case Created, Assumed:
		if err := h.sendDestroy(); err != nil {
			return err
		}
		s.state = Destroying
		return nil
	case Creating:
		s.state = WantDestroy
		return nil
	default:
		return &StateError{Kind: h.entityKind(), State: s.state, Transition: TransitionDestroy}
	}
}

func (s *EntityState) receiveCreate(h hooks) error {
	switch s.state {
	case Reserved, Creating:
		if !s.subscribed {
			if err := h.sendSubscribe(); err != nil {
				return err
			}
			s.subscribed = true
		}
		s.state = Created
		return nil
	case Assumed:
		s.state = Created
		return nil
	case WantDestroy:
		if err := h.sendDestroy(); err != nil {
			return err
		}
		s.state = Destroying
		return nil
	default:
		return &StateError{Kind: h.entityKind(), State: s.state, Transition: TransitionReceiveCreate}
	}
}

// reconfirmable reports whether a repeated create confirmation still has
// work to do: the first one failed before the state moved, or the flush
// after it did not finish.
func (s *EntityState) reconfirmable() bool {
	switch s.state {
	case Reserved, Creating, Assumed, WantDestroy:
		return true
	case Created:
		return !s.flushed
	default:
		return false
	}
}

// receiveDestroy finalizes destruction. A remote destroy of a Created or
// Assumed entity sends nothing but still detaches it locally.
func (s *EntityState) receiveDestroy(h hooks) error {
	switch s.state {
	case Created, Assumed, Destroying:
		s.state = Destroyed
		s.subscribed = false
		h.clean()
		return nil
	default:
		return &StateError{Kind: h.entityKind(), State: s.state, Transition: TransitionReceiveDestroy}
	}
}

// drop marks the entity destroyed without any command. Used when an owner
// is cleaned or the connection terminates.
func (s *EntityState) drop() {
	s.state = Destroyed
	s.subscribed = false
}
