package ir

import "fmt"

// Direction tells whether a journaled message was sent or received.
type Direction string

const (
	Outbound Direction = "out"
	Inbound  Direction = "in"
)

// ParseDirection validates a stored direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Outbound, Inbound:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}
