package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/versync/internal/ir"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/node_reconciliation.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Equal(t, len(first.Trace), len(second.Trace))
	for i := range first.Trace {
		assert.Equal(t, first.Trace[i].ID, second.Trace[i].ID)
	}
	assert.Equal(t, FormatTrace(first.Trace), FormatTrace(second.Trace))
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "one local node",
		Steps: []Step{
			{Local: ActionCreateNode, As: "n", CustomType: 1},
		},
		Assertions: []Assertion{
			{Type: AssertSentCount, Op: string(ir.OpNodeCreate), Count: 1},
			{Type: AssertPendingCount, Count: 1},
			{Type: AssertEntityState, Target: "n", State: "creating"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Sent, 1)
	assert.Equal(t, "tok-1", result.Sent[0].Token)
	assert.Equal(t, ir.DefaultPriority, result.Sent[0].Priority)
	assert.Equal(t, "1 out node_create custom_type=1 parent=0 prio=128 token=tok-1 user=0\n", FormatTrace(result.Trace))
}

func TestRun_TokenPrefix(t *testing.T) {
	scenario := &Scenario{
		Name:        "prefix",
		Description: "custom tokens",
		Tokens:      "session-a",
		Steps: []Step{
			{Local: ActionCreateNode, CustomType: 1},
			{Local: ActionCreateNode, CustomType: 1},
		},
		Assertions: []Assertion{{Type: AssertPendingCount, Count: 2}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Sent, 2)
	assert.Equal(t, "session-a-1", result.Sent[0].Token)
	assert.Equal(t, "session-a-2", result.Sent[1].Token)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "duplicate pending tag group",
		Steps: []Step{
			{Local: ActionCreateNode, As: "n", CustomType: 1},
			{Local: ActionCreateTagGroup, Target: "n", CustomType: 4},
			{Local: ActionCreateTagGroup, Target: "n", CustomType: 4},
		},
		Assertions: []Assertion{{Type: AssertPendingCount, Count: 1}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[2] create_taggroup: unexpected error")
}

func TestRun_ExpectedErrorClass(t *testing.T) {
	tests := []struct {
		name   string
		class  string
		pass   bool
		reason string
	}{
		{name: "marker matches", class: ErrorClassMarker, pass: true},
		{name: "any matches", class: ErrorClassAny, pass: true},
		{name: "wrong class", class: ErrorClassValue, pass: false, reason: "expected value error, got"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "expect_" + tt.class,
				Description: "duplicate pending tag group",
				Steps: []Step{
					{Local: ActionCreateNode, As: "n", CustomType: 1},
					{Local: ActionCreateTagGroup, Target: "n", CustomType: 4},
					{Local: ActionCreateTagGroup, Target: "n", CustomType: 4, ExpectError: tt.class},
				},
				Assertions: []Assertion{{Type: AssertPendingCount, Count: 1}},
			}

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, result.Pass, "errors: %v", result.Errors)
			if tt.reason != "" {
				require.NotEmpty(t, result.Errors)
				assert.Contains(t, result.Errors[0], tt.reason)
			}
		})
	}
}

func TestRun_MissingExpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "create succeeds",
		Steps: []Step{
			{Local: ActionCreateNode, CustomType: 1, ExpectError: ErrorClassState},
		},
		Assertions: []Assertion{{Type: AssertPendingCount, Count: 1}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected state error, got none")
}

func TestRun_BrokenScenario(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{
			name: "unknown handle",
			step: Step{Local: ActionCreateTagGroup, Target: "ghost", CustomType: 1},
			want: `unknown handle "ghost"`,
		},
		{
			name: "wrong handle kind",
			step: Step{Local: ActionCreateTag, Target: "n", Value: []any{1}},
			want: `handle "n" is not a tag group`,
		},
		{
			name: "unbound node reference",
			step: Step{Local: ActionSetPriority, Target: "#99", Priority: 1},
			want: "no bound node 99",
		},
		{
			name: "handle reused",
			step: Step{Local: ActionCreateNode, As: "n", CustomType: 2},
			want: `handle "n" already bound`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "broken",
				Description: "broken",
				Steps: []Step{
					{Local: ActionCreateNode, As: "n", CustomType: 1},
					tt.step,
				},
				Assertions: []Assertion{{Type: AssertPendingCount}},
			}
			_, err := Run(context.Background(), scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "steps[1]")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_MissingCatalog(t *testing.T) {
	scenario := &Scenario{
		Name:        "catalog",
		Description: "missing catalog file",
		Catalog:     filepath.Join(t.TempDir(), "none.cue"),
		Steps:       []Step{{Local: ActionCreateNode}},
		Assertions:  []Assertion{{Type: AssertPendingCount, Count: 1}},
	}
	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

func TestRun_CatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lamp.cue"), []byte(`
node: lamp: {
	type: 40
	taggroup: light: {
		type: 2
		tag: color: {type: 0, kind: "real", count: 3}
	}
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lamp.yaml"), []byte(`
name: lamp_catalog
description: "catalog shapes reject a text color"
catalog: lamp.cue
steps:
  - local: create_node
    as: lamp
    custom_type: 40
  - local: create_taggroup
    target: lamp
    as: light
    custom_type: 2
  - local: create_tag
    target: light
    custom_type: 0
    value: ["red"]
    expect_error: value
  - local: create_tag
    target: light
    as: color
    custom_type: 0
    kind: real
    value: [1, 0, 0]
assertions:
  - type: entity_state
    target: color
    state: creating
`), 0644))

	scenario, err := LoadScenario(filepath.Join(dir, "lamp.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lamp.cue"), scenario.Catalog)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestFormatTrace(t *testing.T) {
	entry, err := ir.NewEntry("s", ir.Outbound, 3, ir.Message{Op: ir.OpNodeDestroy, Node: 70})
	require.NoError(t, err)

	assert.Equal(t, "3 out node_destroy node=70\n", FormatTrace([]ir.Entry{entry}))
	assert.Empty(t, FormatTrace(nil))
	assert.Equal(t, 1, strings.Count(FormatTrace([]ir.Entry{entry}), "\n"))
}

func TestParseScenario_Validation(t *testing.T) {
	const head = "name: s\ndescription: d\n"
	const tail = "assertions:\n  - type: pending_count\n    count: 0\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps:\n  - local: create_node\n" + tail,
			want: "name is required",
		},
		{
			name: "no steps",
			yaml: head + "steps: []\n" + tail,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: head + "steps:\n  - local: create_node\n",
			want: "assertions list is required",
		},
		{
			name: "unknown field",
			yaml: head + "colour: red\nsteps:\n  - local: create_node\n" + tail,
			want: "colour",
		},
		{
			name: "two step kinds",
			yaml: head + "steps:\n  - local: create_node\n    fail_on: node_create\n" + tail,
			want: "exactly one of local, receive, fail_on or restore",
		},
		{
			name: "unknown action",
			yaml: head + "steps:\n  - local: teleport\n" + tail,
			want: `unknown local action "teleport"`,
		},
		{
			name: "unknown fail_on op",
			yaml: head + "steps:\n  - fail_on: node_explode\n" + tail,
			want: `unknown op "node_explode"`,
		},
		{
			name: "expect_error on receive",
			yaml: head + "steps:\n  - receive: {op: connect_terminate}\n    expect_error: any\n" + tail,
			want: "expect_error applies to local steps only",
		},
		{
			name: "unknown error class",
			yaml: head + "steps:\n  - local: create_node\n    expect_error: oops\n" + tail,
			want: `unknown error class "oops"`,
		},
		{
			name: "link without parent",
			yaml: head + "steps:\n  - local: link\n    target: a\n" + tail,
			want: "target and parent are required for link",
		},
		{
			name: "set_tag without value",
			yaml: head + "steps:\n  - local: set_tag\n    target: t\n" + tail,
			want: "value is required for set_tag",
		},
		{
			name: "scenario priority out of range",
			yaml: head + "priority: 300\nsteps:\n  - local: create_node\n" + tail,
			want: "priority 300 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: ok
description: parsed
connect: {user: 100, avatar: 65}
steps:
  - local: create_node
    as: a
    custom_type: 9
  - receive: {op: node_create, node: 70, parent: 65, user: 100, custom_type: 9, token: tok-1}
assertions:
  - type: bound_id
    target: a
    id: 70
`))
	require.NoError(t, err)
	require.NotNil(t, s.Connect)
	assert.Equal(t, 65, s.Connect.Avatar)
	assert.Len(t, s.Steps, 2)
	assert.Equal(t, AssertBoundID, s.Assertions[0].Type)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestEvaluateAssertions_FailureMessages(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "assertions that do not hold",
		Steps:       []Step{{Local: ActionCreateNode, As: "n", CustomType: 1}},
		Assertions: []Assertion{
			{Type: AssertSentCount, Op: string(ir.OpNodeCreate), Count: 2},
			{Type: AssertEntityState, Target: "n", State: "created"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.True(t, strings.HasPrefix(result.Errors[0], "assertions[0]: "), result.Errors[0])
	assert.True(t, strings.HasPrefix(result.Errors[1], "assertions[1]: "), result.Errors[1])
	assert.Contains(t, result.Errors[1], "creating")
}
