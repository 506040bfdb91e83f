package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed journal identity.
// Version suffix enables future algorithm migration.
const (
	DomainEntry = "versync/entry/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryID computes the content-addressed id of a journal entry.
// The same message at the same position of the same session always hashes
// to the same id, so re-journaling a replayed session is idempotent.
func EntryID(session string, dir Direction, seq int64, msg Message) (string, error) {
	obj := map[string]any{
		"session":   session,
		"direction": string(dir),
		"seq":       seq,
		"message":   msg.Fields(),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EntryID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEntry, canonical), nil
}

// MustEntryID is like EntryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEntryID(session string, dir Direction, seq int64, msg Message) string {
	id, err := EntryID(session, dir, seq, msg)
	if err != nil {
		panic(err)
	}
	return id
}
