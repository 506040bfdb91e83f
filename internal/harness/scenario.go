package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// Scenario is a scripted sync session: local mutations interleaved with
// server notifications, followed by assertions on the commands sent and
// the resulting replica.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Connect, when set, delivers a connect_accept before the first step.
	Connect *Connect `yaml:"connect,omitempty"`

	// Tokens is the correlation token prefix. Local node creates carry
	// "<prefix>-1", "<prefix>-2", ... Defaults to "tok".
	Tokens string `yaml:"tokens,omitempty"`

	// Priority is the priority sent with node creates. Defaults to 128.
	Priority int `yaml:"priority,omitempty"`

	// Catalog is "builtin" or a path to a CUE catalog, relative to the
	// scenario file. Empty means no shape checks.
	Catalog string `yaml:"catalog,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Connect is the local scope the server assigns on connect.
type Connect struct {
	User   int `yaml:"user"`
	Avatar int `yaml:"avatar"`
}

// Step is exactly one of: a local mutation, a received notification, or
// a change to the transport's failure injection.
type Step struct {
	// Local names the mutation; see the Action* constants.
	Local string `yaml:"local,omitempty"`

	// Receive is a notification in message field form.
	Receive map[string]any `yaml:"receive,omitempty"`

	// FailOn makes every later send of the named op fail.
	FailOn string `yaml:"fail_on,omitempty"`

	// Restore clears failure injection for the named op.
	Restore string `yaml:"restore,omitempty"`

	// As names the entity or item the step creates.
	As string `yaml:"as,omitempty"`

	// Target is the handle the step acts on. "#<id>" refers to a bound
	// node by server id.
	Target string `yaml:"target,omitempty"`

	// Parent is a node handle for create_node and link, or a layer
	// handle for create_layer.
	Parent string `yaml:"parent,omitempty"`

	CustomType int    `yaml:"custom_type,omitempty"`
	Kind       string `yaml:"kind,omitempty"`
	Count      int    `yaml:"count,omitempty"`
	Value      []any  `yaml:"value,omitempty"`
	Priority   int    `yaml:"priority,omitempty"`

	// ExpectError is the error class the mutation must fail with:
	// "state", "marker", "value" or "any".
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Local mutation names.
const (
	ActionCreateNode     = "create_node"
	ActionCreateTagGroup = "create_taggroup"
	ActionCreateTag      = "create_tag"
	ActionSetTag         = "set_tag"
	ActionCreateLayer    = "create_layer"
	ActionAddItem        = "add_item"
	ActionSetItem        = "set_item"
	ActionRemoveItem     = "remove_item"
	ActionSetPriority    = "set_priority"
	ActionLink           = "link"
	ActionDestroy        = "destroy"
)

// Error classes accepted by expect_error.
const (
	ErrorClassState  = "state"
	ErrorClassMarker = "marker"
	ErrorClassValue  = "value"
	ErrorClassAny    = "any"
)

// Assertion validates the sent commands or the final replica.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Message is a subset of message fields (sent_contains).
	Message map[string]any `yaml:"message,omitempty"`

	// Op is the command name (sent_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected command order (sent_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number (sent_count, pending_count, item_count).
	Count int `yaml:"count,omitempty"`

	// Target is the handle checked (entity_state, tag_value, item_value,
	// bound_id, item_count).
	Target string `yaml:"target,omitempty"`

	// State is the expected lifecycle state name (entity_state).
	State string `yaml:"state,omitempty"`

	// Value is the expected tuple (tag_value, item_value).
	Value []any `yaml:"value,omitempty"`

	// ID is the expected server id (bound_id).
	ID int `yaml:"id,omitempty"`
}

// Assertion type constants.
const (
	AssertSentContains = "sent_contains"
	AssertSentOrder    = "sent_order"
	AssertSentCount    = "sent_count"
	AssertEntityState  = "entity_state"
	AssertTagValue     = "tag_value"
	AssertItemValue    = "item_value"
	AssertItemCount    = "item_count"
	AssertBoundID      = "bound_id"
	AssertPendingCount = "pending_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative catalog path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && scenario.Catalog != "builtin" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Priority < 0 || s.Priority > 255 {
		return fmt.Errorf("priority %d out of range 0..255", s.Priority)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	kinds := 0
	for _, set := range []bool{st.Local != "", st.Receive != nil, st.FailOn != "", st.Restore != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of local, receive, fail_on or restore is required", index)
	}

	switch {
	case st.Receive != nil:
		if _, err := ir.ParseMessage(st.Receive); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if st.ExpectError != "" {
			return fmt.Errorf("steps[%d]: expect_error applies to local steps only", index)
		}
		return nil
	case st.FailOn != "":
		if !ir.KnownOp(ir.Op(st.FailOn)) {
			return fmt.Errorf("steps[%d]: unknown op %q", index, st.FailOn)
		}
		return nil
	case st.Restore != "":
		if !ir.KnownOp(ir.Op(st.Restore)) {
			return fmt.Errorf("steps[%d]: unknown op %q", index, st.Restore)
		}
		return nil
	}

	switch st.ExpectError {
	case "", ErrorClassState, ErrorClassMarker, ErrorClassValue, ErrorClassAny:
	default:
		return fmt.Errorf("steps[%d]: unknown error class %q", index, st.ExpectError)
	}
	if st.CustomType < 0 || st.CustomType > 0xFFFF {
		return fmt.Errorf("steps[%d]: custom_type %d out of range", index, st.CustomType)
	}

	switch st.Local {
	case ActionCreateNode:
	case ActionCreateTagGroup, ActionSetTag, ActionAddItem, ActionSetItem,
		ActionRemoveItem, ActionSetPriority, ActionDestroy, ActionCreateTag:
		if st.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for %s", index, st.Local)
		}
	case ActionCreateLayer:
		if st.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for %s", index, st.Local)
		}
		if _, err := ir.ParseValueKind(st.Kind); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case ActionLink:
		if st.Target == "" || st.Parent == "" {
			return fmt.Errorf("steps[%d]: target and parent are required for link", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown local action %q", index, st.Local)
	}

	switch st.Local {
	case ActionCreateTag, ActionSetTag, ActionAddItem, ActionSetItem:
		if len(st.Value) == 0 {
			return fmt.Errorf("steps[%d]: value is required for %s", index, st.Local)
		}
	case ActionSetPriority:
		if st.Priority < 0 || st.Priority > 255 {
			return fmt.Errorf("steps[%d]: priority %d out of range 0..255", index, st.Priority)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSentContains:
		if len(a.Message) == 0 {
			return fmt.Errorf("assertions[%d]: message is required for sent_contains", index)
		}
		if _, err := ir.ParseMessage(a.Message); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertSentOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for sent_order", index)
		}
	case AssertSentCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for sent_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for sent_count", index)
		}
	case AssertEntityState:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for entity_state", index)
		}
		if _, ok := entity.ParseState(a.State); !ok {
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
	case AssertTagValue, AssertItemValue:
		if a.Target == "" || len(a.Value) == 0 {
			return fmt.Errorf("assertions[%d]: target and value are required for %s", index, a.Type)
		}
	case AssertItemCount, AssertBoundID:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
	case AssertPendingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pending_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
