package authtree

import "errors"

// ErrActionExclusivity indicates an Action was built violating the
// contract that exactly one of outcome or callbacks is populated.
var ErrActionExclusivity = errors.New("action must carry exactly one of outcome or callbacks")

// Action is the result of one node's evaluation: either an outcome naming
// the edge to follow, or callbacks requesting more client input, plus
// optional replacement state and a resolved subject.
type Action struct {
	Outcome   string
	Callbacks []Callback

	// Copy-on-write replacements; nil means keep the current state.
	NewSharedState    map[string]interface{}
	NewTransientState map[string]interface{}

	UniversalID string
}

// ActionBuilder assembles an Action. Obtain one from GoTo or Send.
type ActionBuilder struct {
	action Action
}

// GoTo starts an Action selecting the given outcome edge.
func GoTo(outcome string) *ActionBuilder {
	return &ActionBuilder{action: Action{Outcome: outcome}}
}

// Send starts an Action suspending evaluation with callbacks for the
// client.
func Send(cbs ...Callback) *ActionBuilder {
	return &ActionBuilder{action: Action{Callbacks: cbs}}
}

// ReplaceSharedState attaches a replacement shared-state map.
func (b *ActionBuilder) ReplaceSharedState(state map[string]interface{}) *ActionBuilder {
	b.action.NewSharedState = state
	return b
}

// ReplaceTransientState attaches a replacement transient-state map.
func (b *ActionBuilder) ReplaceTransientState(state map[string]interface{}) *ActionBuilder {
	b.action.NewTransientState = state
	return b
}

// WithUniversalID records the resolved subject.
func (b *ActionBuilder) WithUniversalID(id string) *ActionBuilder {
	b.action.UniversalID = id
	return b
}

// Build validates the mutual-exclusivity contract and returns the Action.
func (b *ActionBuilder) Build() (*Action, error) {
	hasOutcome := b.action.Outcome != ""
	hasCallbacks := len(b.action.Callbacks) > 0
	if hasOutcome == hasCallbacks {
		return nil, ErrActionExclusivity
	}
	a := b.action
	return &a, nil
}

// IsSuspend reports whether the action suspends evaluation for input.
func (a *Action) IsSuspend() bool {
	return len(a.Callbacks) > 0
}
