package ir

import "fmt"

// Entry is one journaled message: a command the client sent or a
// notification it received, stamped with the engine's logical clock.
type Entry struct {
	ID             string
	Session        string
	Seq            int64
	Direction      Direction
	Message        Message
	JournalVersion string
	ClientVersion  string
}

// NewEntry builds an entry with its content-addressed id and the current
// version stamps.
func NewEntry(session string, dir Direction, seq int64, msg Message) (Entry, error) {
	id, err := EntryID(session, dir, seq, msg)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:             id,
		Session:        session,
		Seq:            seq,
		Direction:      dir,
		Message:        msg,
		JournalVersion: JournalVersion,
		ClientVersion:  ClientVersion,
	}, nil
}

func (e Entry) String() string {
	return fmt.Sprintf("%d %s %s", e.Seq, e.Direction, e.Message)
}
