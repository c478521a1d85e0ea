package nodes

import (
	"context"

	"github.com/cedarauth/cedar/pkg/authtree"
)

// UsernameCollectorNode prompts for a username with a NameCallback and
// stores the answer in shared state.
type UsernameCollectorNode struct {
	prompt string
}

// NewUsernameCollectorNode creates a collector with the given prompt.
func NewUsernameCollectorNode(prompt string) *UsernameCollectorNode {
	return &UsernameCollectorNode{prompt: prompt}
}

// Process sends the prompt on first entry and records the answer on
// resume.
func (n *UsernameCollectorNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	if name, ok := authtree.FindName(tc.Callbacks); ok && name != "" {
		shared := tc.CopySharedState()
		shared[KeyUsername] = name
		return authtree.GoTo(OutcomeDefault).ReplaceSharedState(shared).Build()
	}
	return authtree.Send(&authtree.NameCallback{Prompt: n.prompt}).Build()
}

// Inputs implements authtree.Node.
func (n *UsernameCollectorNode) Inputs() []string { return nil }

// Outcomes implements authtree.Node.
func (n *UsernameCollectorNode) Outcomes() []string { return []string{OutcomeDefault} }
