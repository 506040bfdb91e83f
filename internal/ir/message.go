package ir

import (
	"fmt"
	"strings"
)

// Op names a command sent to the server or a notification received from it.
// Outbound commands and inbound notifications share the same names; the
// direction is given by where the Message travels.
type Op string

const (
	OpNodeCreate    Op = "node_create"
	OpNodeDestroy   Op = "node_destroy"
	OpNodeSubscribe Op = "node_subscribe"
	OpNodePrio      Op = "node_prio"
	OpNodeLink      Op = "node_link"

	OpTagGroupCreate    Op = "taggroup_create"
	OpTagGroupDestroy   Op = "taggroup_destroy"
	OpTagGroupSubscribe Op = "taggroup_subscribe"

	OpTagCreate   Op = "tag_create"
	OpTagSetValue Op = "tag_set_value"
	OpTagDestroy  Op = "tag_destroy"

	OpLayerCreate     Op = "layer_create"
	OpLayerDestroy    Op = "layer_destroy"
	OpLayerSubscribe  Op = "layer_subscribe"
	OpLayerSetValue   Op = "layer_set_value"
	OpLayerUnsetValue Op = "layer_unset_value"

	OpConnectAccept    Op = "connect_accept"
	OpConnectTerminate Op = "connect_terminate"
)

// Message is one command or notification. Only the fields named by the Op's
// field list are meaningful; the rest stay zero.
type Message struct {
	Op          Op
	Priority    Priority
	Node        NodeID
	Parent      NodeID
	User        UserID
	TagGroup    TagGroupID
	Tag         TagID
	Layer       LayerID
	ParentLayer LayerID
	Item        ItemID
	CustomType  CustomType
	Kind        ValueKind
	Count       int
	Value       Value
	Version     uint32
	CRC32       uint32
	Token       string
}

// opFields lists the keys each op always carries, zero or not.
var opFields = map[Op][]string{
	OpNodeCreate:        {"prio", "parent", "user", "custom_type"},
	OpNodeDestroy:       {"node"},
	OpNodeSubscribe:     {"node", "version", "crc32"},
	OpNodePrio:          {"node", "prio"},
	OpNodeLink:          {"parent", "node"},
	OpTagGroupCreate:    {"node", "custom_type"},
	OpTagGroupDestroy:   {"node", "taggroup"},
	OpTagGroupSubscribe: {"node", "taggroup", "version", "crc32"},
	OpTagCreate:         {"node", "taggroup", "kind", "count", "custom_type"},
	OpTagSetValue:       {"node", "taggroup", "tag", "value"},
	OpTagDestroy:        {"node", "taggroup", "tag"},
	OpLayerCreate:       {"node", "parent_layer", "kind", "count", "custom_type"},
	OpLayerDestroy:      {"node", "layer"},
	OpLayerSubscribe:    {"node", "layer", "version", "crc32"},
	OpLayerSetValue:     {"node", "layer", "item", "value"},
	OpLayerUnsetValue:   {"node", "layer", "item"},
	OpConnectAccept:     {"user", "node"},
	OpConnectTerminate:  {},
}

// KnownOp reports whether op is part of the protocol vocabulary.
func KnownOp(op Op) bool {
	_, ok := opFields[op]
	return ok
}

// Fields renders the message as a generic map suitable for MarshalCanonical.
// The op's own keys are always present; any other non-zero field is added
// so that notifications carrying extra ids (e.g. a confirmed node id on
// node_create) round-trip.
func (m Message) Fields() map[string]any {
	all := map[string]any{
		"prio":         int64(m.Priority),
		"node":         int64(m.Node),
		"parent":       int64(m.Parent),
		"user":         int64(m.User),
		"taggroup":     int64(m.TagGroup),
		"tag":          int64(m.Tag),
		"layer":        int64(m.Layer),
		"parent_layer": int64(m.ParentLayer),
		"item":         int64(m.Item),
		"custom_type":  int64(m.CustomType),
		"count":        int64(m.Count),
		"version":      int64(m.Version),
		"crc32":        int64(m.CRC32),
	}

	out := map[string]any{"op": string(m.Op)}
	for _, k := range opFields[m.Op] {
		switch k {
		case "kind", "value":
		default:
			out[k] = all[k]
		}
	}
	for k, v := range all {
		if v.(int64) != 0 {
			out[k] = v
		}
	}
	if m.Kind != KindInvalid {
		out["kind"] = m.Kind.String()
	}
	if m.Value != nil {
		out["value"] = valueElements(m.Value)
		out["kind"] = m.Value.Kind().String()
		out["count"] = int64(m.Value.Count())
	}
	if m.Token != "" {
		out["token"] = m.Token
	}
	return out
}

// ParseMessage is the inverse of Fields. It accepts maps decoded from
// canonical JSON (json.Number) or YAML (native ints and floats).
func ParseMessage(fields map[string]any) (Message, error) {
	var m Message

	rawOp, ok := fields["op"].(string)
	if !ok {
		return m, fmt.Errorf("message: missing op")
	}
	m.Op = Op(rawOp)
	if !KnownOp(m.Op) {
		return m, fmt.Errorf("message: unknown op %q", rawOp)
	}

	var err error
	num := func(key string, bits uint) uint64 {
		v, present := fields[key]
		if !present || err != nil {
			return 0
		}
		n, convErr := toInt64(v)
		if convErr != nil {
			err = fmt.Errorf("message %s: field %q: %w", m.Op, key, convErr)
			return 0
		}
		if n < 0 || (bits < 64 && uint64(n) >= 1<<bits) {
			err = fmt.Errorf("message %s: field %q: %d out of range", m.Op, key, n)
			return 0
		}
		return uint64(n)
	}

	m.Priority = Priority(num("prio", 8))
	m.Node = NodeID(num("node", 32))
	m.Parent = NodeID(num("parent", 32))
	m.User = UserID(num("user", 16))
	m.TagGroup = TagGroupID(num("taggroup", 16))
	m.Tag = TagID(num("tag", 16))
	m.Layer = LayerID(num("layer", 16))
	m.ParentLayer = LayerID(num("parent_layer", 16))
	m.Item = ItemID(num("item", 32))
	m.CustomType = CustomType(num("custom_type", 16))
	m.Count = int(num("count", 8))
	m.Version = uint32(num("version", 32))
	m.CRC32 = uint32(num("crc32", 32))
	if err != nil {
		return m, err
	}

	if rawKind, present := fields["kind"]; present {
		s, ok := rawKind.(string)
		if !ok {
			return m, fmt.Errorf("message %s: field \"kind\" must be a string", m.Op)
		}
		if m.Kind, err = ParseValueKind(s); err != nil {
			return m, fmt.Errorf("message %s: %w", m.Op, err)
		}
	}

	if rawValue, present := fields["value"]; present {
		elems, ok := rawValue.([]any)
		if !ok {
			return m, fmt.Errorf("message %s: field \"value\" must be an array", m.Op)
		}
		if m.Kind == KindInvalid {
			if m.Value, err = NewValue(elems...); err != nil {
				return m, fmt.Errorf("message %s: %w", m.Op, err)
			}
		} else if m.Value, err = valueFromElements(m.Kind, elems); err != nil {
			return m, fmt.Errorf("message %s: %w", m.Op, err)
		}
		m.Kind = m.Value.Kind()
		m.Count = m.Value.Count()
	}

	if rawToken, present := fields["token"]; present {
		if m.Token, ok = rawToken.(string); !ok {
			return m, fmt.Errorf("message %s: field \"token\" must be a string", m.Op)
		}
	}

	return m, nil
}

// String renders the message in a compact key=value form for logs and
// text traces. Keys follow canonical order.
func (m Message) String() string {
	fields := m.Fields()
	var b strings.Builder
	b.WriteString(string(m.Op))
	for _, k := range SortedKeys(fields) {
		if k == "op" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
