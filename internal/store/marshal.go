package store

import (
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// marshalMessage converts a message to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalMessage(msg ir.Message) (string, error) {
	data, err := ir.MarshalCanonical(msg.Fields())
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return string(data), nil
}

// unmarshalMessage parses canonical JSON TEXT back to a message.
// Numbers are decoded as json.Number so 32-bit ids never pass through
// float64.
func unmarshalMessage(data string) (ir.Message, error) {
	fields, err := ir.UnmarshalCanonical([]byte(data))
	if err != nil {
		return ir.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	msg, err := ir.ParseMessage(fields)
	if err != nil {
		return ir.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}
