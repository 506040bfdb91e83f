package ir

// Version constants for the journal schema and the client.
const (
	// JournalVersion is the version of the journal entry encoding.
	JournalVersion = "1"

	// ClientVersion is the versync client version.
	ClientVersion = "0.1.0"
)
