package nodes

import (
	"context"
	"time"

	"github.com/cedarauth/cedar/pkg/authtree"
)

// TimerStartNode records the current wall-clock time, in epoch
// milliseconds, into shared state under a configurable key.
type TimerStartNode struct {
	startKey string
	now      func() time.Time
}

// NewTimerStartNode creates a start node writing to startKey.
func NewTimerStartNode(startKey string) *TimerStartNode {
	return &TimerStartNode{startKey: startKey, now: time.Now}
}

// Process stamps the start time and continues.
func (n *TimerStartNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	shared := tc.CopySharedState()
	shared[n.startKey] = n.now().UnixMilli()
	return authtree.GoTo(OutcomeDefault).ReplaceSharedState(shared).Build()
}

// Inputs implements authtree.Node.
func (n *TimerStartNode) Inputs() []string { return nil }

// Outcomes implements authtree.Node.
func (n *TimerStartNode) Outcomes() []string { return []string{OutcomeDefault} }

// TimerStopNode computes the elapsed time since the matching start key
// and records it, in milliseconds, under the elapsed key.
type TimerStopNode struct {
	startKey   string
	elapsedKey string
	now        func() time.Time
}

// NewTimerStopNode creates a stop node reading startKey and writing
// elapsedKey.
func NewTimerStopNode(startKey, elapsedKey string) *TimerStopNode {
	return &TimerStopNode{startKey: startKey, elapsedKey: elapsedKey, now: time.Now}
}

// Process computes the elapsed interval. A missing start key is a
// process error: the stop node without its start node is a broken tree.
func (n *TimerStopNode) Process(_ context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	raw, ok := tc.Shared(n.startKey)
	if !ok {
		return nil, authtree.NewProcessErrorf(TypeTimerStop, "missing start time under %q", n.startKey)
	}

	var start int64
	switch v := raw.(type) {
	case int64:
		start = v
	case int:
		start = int64(v)
	case float64:
		start = int64(v)
	default:
		return nil, authtree.NewProcessErrorf(TypeTimerStop, "start time under %q is not a timestamp", n.startKey)
	}

	shared := tc.CopySharedState()
	shared[n.elapsedKey] = n.now().UnixMilli() - start
	return authtree.GoTo(OutcomeDefault).ReplaceSharedState(shared).Build()
}

// Inputs implements authtree.Node.
func (n *TimerStopNode) Inputs() []string { return []string{n.startKey} }

// Outcomes implements authtree.Node.
func (n *TimerStopNode) Outcomes() []string { return []string{OutcomeDefault} }
