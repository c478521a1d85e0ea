package authtree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarauth/cedar/pkg/observability"
)

// stubNode always produces the same outcome, optionally resolving a
// subject or raising an auth level.
type stubNode struct {
	outcome     string
	outcomes    []string
	universalID string
	level       int
	err         error
}

func (n *stubNode) Process(_ context.Context, _ *TreeContext) (*Action, error) {
	if n.err != nil {
		return nil, n.err
	}
	b := GoTo(n.outcome)
	if n.universalID != "" {
		b = b.WithUniversalID(n.universalID)
	}
	return b.Build()
}

func (n *stubNode) Inputs() []string { return nil }

func (n *stubNode) Outcomes() []string {
	if n.outcomes != nil {
		return n.outcomes
	}
	return []string{n.outcome}
}

func (n *stubNode) MaxAuthLevel() int { return n.level }

// askNode suspends with a NameCallback until the answer arrives, then
// stores it in shared state.
type askNode struct{}

func (n *askNode) Process(_ context.Context, tc *TreeContext) (*Action, error) {
	if name, ok := FindName(tc.Callbacks); ok && name != "" {
		shared := tc.CopySharedState()
		shared["username"] = name
		return GoTo("collected").ReplaceSharedState(shared).Build()
	}
	return Send(&NameCallback{Prompt: "User Name"}).Build()
}

func (n *askNode) Inputs() []string   { return nil }
func (n *askNode) Outcomes() []string { return []string{"collected"} }

// rawActionNode returns a hand-built Action, bypassing the builder's
// validation.
type rawActionNode struct {
	action *Action
}

func (n *rawActionNode) Process(context.Context, *TreeContext) (*Action, error) {
	return n.action, nil
}
func (n *rawActionNode) Inputs() []string   { return nil }
func (n *rawActionNode) Outcomes() []string { return []string{"done"} }

func singleNodeTree(t *testing.T, node Node, next map[string]string) *Tree {
	t.Helper()
	tree, err := NewTree("login", "start", map[string]*TreeNode{
		"start": {ID: "start", Type: "Stub", Node: node, Next: next},
	}, observability.NopLogger(), nil)
	require.NoError(t, err)
	return tree
}

func TestEvaluateToSuccess(t *testing.T) {
	tree := singleNodeTree(t,
		&stubNode{outcome: "done", universalID: "uid=alice"},
		map[string]string{"done": TerminalSuccess})

	result, err := tree.Evaluate(context.Background(), NewTreeContext(nil))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "uid=alice", result.UniversalID)
}

func TestEvaluateToFailure(t *testing.T) {
	tree := singleNodeTree(t,
		&stubNode{outcome: "nope"},
		map[string]string{"nope": TerminalFailure})

	result, err := tree.Evaluate(context.Background(), NewTreeContext(nil))
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, result.Status)
	assert.Empty(t, result.UniversalID)
}

func TestEvaluateChainsNodes(t *testing.T) {
	nodes := map[string]*TreeNode{
		"first": {ID: "first", Type: "Stub",
			Node: &stubNode{outcome: "next"},
			Next: map[string]string{"next": "second"}},
		"second": {ID: "second", Type: "Stub",
			Node: &stubNode{outcome: "done", universalID: "uid=bob"},
			Next: map[string]string{"done": TerminalSuccess}},
	}
	tree, err := NewTree("login", "first", nodes, observability.NopLogger(), nil)
	require.NoError(t, err)

	result, err := tree.Evaluate(context.Background(), NewTreeContext(nil))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "uid=bob", result.UniversalID)
}

func TestEngineRejectsNonExclusiveActions(t *testing.T) {
	cases := []struct {
		name   string
		action *Action
	}{
		{"both outcome and callbacks", &Action{
			Outcome:   "done",
			Callbacks: []Callback{&NameCallback{Prompt: "User Name"}},
		}},
		{"neither outcome nor callbacks", &Action{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree := singleNodeTree(t,
				&rawActionNode{action: tc.action},
				map[string]string{"done": TerminalSuccess})

			_, err := tree.Evaluate(context.Background(), NewTreeContext(nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrActionExclusivity)
			var perr *ProcessError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestSuspendAndResume(t *testing.T) {
	tree := singleNodeTree(t, &askNode{},
		map[string]string{"collected": TerminalSuccess})
	ctx := context.Background()

	result, err := tree.Evaluate(ctx, NewTreeContext(nil))
	require.NoError(t, err)
	require.Equal(t, StatusCallbacks, result.Status)
	require.Len(t, result.Callbacks, 1)
	assert.Equal(t, "start", result.NodeID)

	nc, ok := result.Callbacks[0].(*NameCallback)
	require.True(t, ok)
	assert.Equal(t, "User Name", nc.Prompt)

	resumed, err := tree.Resume(ctx, result.Context, result.NodeID,
		[]Callback{&NameCallback{Prompt: "User Name", Value: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resumed.Status)
	assert.Equal(t, "alice", resumed.Context.SharedState["username"])
}

func TestResumeAtUnknownNodeIsConfigError(t *testing.T) {
	tree := singleNodeTree(t, &askNode{},
		map[string]string{"collected": TerminalSuccess})

	_, err := tree.Resume(context.Background(), NewTreeContext(nil), "missing", nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestNodeErrorWrapsAsProcessError(t *testing.T) {
	boom := errors.New("identity store unavailable")
	tree := singleNodeTree(t,
		&stubNode{outcome: "done", err: boom},
		map[string]string{"done": TerminalSuccess})

	_, err := tree.Evaluate(context.Background(), NewTreeContext(nil))
	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
}

func TestUnmappedOutcomeIsConfigError(t *testing.T) {
	// The node declares two outcomes but emits one the definition never
	// wired; construction catches the missing edge.
	_, err := NewTree("login", "start", map[string]*TreeNode{
		"start": {ID: "start", Type: "Stub",
			Node: &stubNode{outcome: "b", outcomes: []string{"a", "b"}},
			Next: map[string]string{"a": TerminalSuccess}},
	}, observability.NopLogger(), nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, `outcome "b"`)
}

func TestEdgeToUnknownNodeIsConfigError(t *testing.T) {
	_, err := NewTree("login", "start", map[string]*TreeNode{
		"start": {ID: "start", Type: "Stub",
			Node: &stubNode{outcome: "done"},
			Next: map[string]string{"done": "ghost"}},
	}, observability.NopLogger(), nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestProcessIsDeterministic(t *testing.T) {
	node := &stubNode{outcome: "done", universalID: "uid=alice"}
	tc := NewTreeContext(nil)

	first, err := node.Process(context.Background(), tc)
	require.NoError(t, err)
	second, err := node.Process(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestActionMutualExclusivity(t *testing.T) {
	_, err := GoTo("done").Build()
	assert.NoError(t, err)

	_, err = Send(&NameCallback{Prompt: "x"}).Build()
	assert.NoError(t, err)

	_, err = (&ActionBuilder{}).Build()
	assert.ErrorIs(t, err, ErrActionExclusivity)
}

func TestMaxAuthLevel(t *testing.T) {
	nodes := map[string]*TreeNode{
		"start": {ID: "start", Type: "Stub",
			Node: &stubNode{outcome: "go"},
			Next: map[string]string{"go": "weak"}},
		"weak": {ID: "weak", Type: "Stub",
			Node: &stubNode{outcome: "up", level: 5},
			Next: map[string]string{"up": "strong"}},
		"strong": {ID: "strong", Type: "Stub",
			Node: &stubNode{outcome: "done", level: 20},
			Next: map[string]string{"done": TerminalSuccess}},
	}
	tree, err := NewTree("login", "start", nodes, observability.NopLogger(), nil)
	require.NoError(t, err)

	level, ok := tree.MaxAuthLevel("start", "go")
	require.True(t, ok)
	assert.Equal(t, 20, level)

	_, ok = tree.MaxAuthLevel("start", "unknown")
	assert.False(t, ok)
}

func TestAdvanceLeavesOriginalContextUntouched(t *testing.T) {
	tc := NewTreeContext(nil)
	tc.SharedState["key"] = "original"

	shared := tc.CopySharedState()
	shared["key"] = "replaced"
	action, err := GoTo("done").ReplaceSharedState(shared).Build()
	require.NoError(t, err)

	next := tc.advance(action)
	assert.Equal(t, "original", tc.SharedState["key"])
	assert.Equal(t, "replaced", next.SharedState["key"])
}
