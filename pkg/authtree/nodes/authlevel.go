package nodes

import (
	"context"

	"github.com/cedarauth/cedar/pkg/authtree"
)

// ModifyAuthLevelNode adjusts the accumulated authentication level in
// shared state by a fixed increment. It reports its increment through
// MaxAuthLevel so the engine can estimate reachable levels without
// executing the tree.
type ModifyAuthLevelNode struct {
	increment int
}

// NewModifyAuthLevelNode creates a node adding increment to the auth
// level.
func NewModifyAuthLevelNode(increment int) *ModifyAuthLevelNode {
	return &ModifyAuthLevelNode{increment: increment}
}

// Process adds the increment and continues.
func (n *ModifyAuthLevelNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	level := 0
	switch v := tc.SharedState[KeyAuthLevel].(type) {
	case int:
		level = v
	case int64:
		level = int(v)
	case float64:
		level = int(v)
	}

	shared := tc.CopySharedState()
	shared[KeyAuthLevel] = level + n.increment
	return authtree.GoTo(OutcomeDefault).ReplaceSharedState(shared).Build()
}

// Inputs implements authtree.Node.
func (n *ModifyAuthLevelNode) Inputs() []string { return []string{KeyAuthLevel} }

// Outcomes implements authtree.Node.
func (n *ModifyAuthLevelNode) Outcomes() []string { return []string{OutcomeDefault} }

// MaxAuthLevel implements authtree.MaxAuthLevelProvider.
func (n *ModifyAuthLevelNode) MaxAuthLevel() int { return n.increment }
