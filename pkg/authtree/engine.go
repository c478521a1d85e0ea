package authtree

import (
	"context"
	"fmt"
	"time"

	"github.com/cedarauth/cedar/pkg/observability"
)

// Terminal edge targets.
const (
	TerminalSuccess = "success"
	TerminalFailure = "failure"
)

// Status is the terminal disposition of an evaluation.
type Status int

const (
	// StatusSuccess means authentication succeeded with a resolved subject.
	StatusSuccess Status = iota
	// StatusFailure means authentication failed.
	StatusFailure
	// StatusCallbacks means evaluation suspended awaiting client input.
	StatusCallbacks
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusCallbacks:
		return "callbacks"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Evaluate or Resume call. On
// StatusCallbacks, NodeID records the suspension point and Context the
// state to resume with; on StatusSuccess, UniversalID carries the subject.
type Result struct {
	Status      Status
	UniversalID string
	Callbacks   []Callback
	NodeID      string
	Context     *TreeContext
}

// TreeNode binds a node instance into a tree: its configured outcome
// edges map each declared outcome to the next node ID or a terminal.
type TreeNode struct {
	ID   string
	Type string
	Node Node
	Next map[string]string
}

// Tree is an immutable, evaluatable authentication tree.
type Tree struct {
	Name  string
	Entry string
	Nodes map[string]*TreeNode

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewTree validates the wiring of a tree definition: the entry node must
// exist, every edge must target an existing node or terminal, and every
// declared outcome must have an edge.
func NewTree(name, entry string, nodes map[string]*TreeNode, logger *observability.Logger, metrics *observability.Metrics) (*Tree, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if _, ok := nodes[entry]; !ok {
		return nil, &ConfigError{Tree: name, Reason: fmt.Sprintf("entry node %q not defined", entry)}
	}
	for id, tn := range nodes {
		declared := map[string]bool{}
		for _, outcome := range tn.Node.Outcomes() {
			declared[outcome] = true
			if _, ok := tn.Next[outcome]; !ok {
				return nil, &ConfigError{Tree: name, NodeID: id, Reason: fmt.Sprintf("outcome %q has no edge", outcome)}
			}
		}
		for outcome, target := range tn.Next {
			if !declared[outcome] {
				return nil, &ConfigError{Tree: name, NodeID: id, Reason: fmt.Sprintf("edge for undeclared outcome %q", outcome)}
			}
			if target == TerminalSuccess || target == TerminalFailure {
				continue
			}
			if _, ok := nodes[target]; !ok {
				return nil, &ConfigError{Tree: name, NodeID: id, Reason: fmt.Sprintf("outcome %q targets unknown node %q", outcome, target)}
			}
		}
	}
	return &Tree{Name: name, Entry: entry, Nodes: nodes, logger: logger, metrics: metrics}, nil
}

// Evaluate runs the tree from its entry node.
func (t *Tree) Evaluate(ctx context.Context, tc *TreeContext) (*Result, error) {
	return t.run(ctx, tc, t.Entry)
}

// Resume continues a suspended evaluation at the node that issued the
// callbacks, with the client's answers attached to the context. The node
// re-processes with the answers present, so nodes consuming answers must
// tolerate retransmission.
func (t *Tree) Resume(ctx context.Context, tc *TreeContext, nodeID string, answers []Callback) (*Result, error) {
	if _, ok := t.Nodes[nodeID]; !ok {
		return nil, &ConfigError{Tree: t.Name, NodeID: nodeID, Reason: "resume node not defined"}
	}
	return t.run(ctx, tc.withCallbacks(answers), nodeID)
}

func (t *Tree) run(ctx context.Context, tc *TreeContext, startID string) (*Result, error) {
	start := time.Now()
	result, err := t.step(ctx, tc, startID)
	if t.metrics != nil {
		t.metrics.TreeEvaluationDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
		status := "error"
		if err == nil {
			status = result.Status.String()
		}
		t.metrics.TreeEvaluationsTotal.WithLabelValues(t.Name, status).Inc()
	}
	return result, err
}

func (t *Tree) step(ctx context.Context, tc *TreeContext, currentID string) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch currentID {
		case TerminalSuccess:
			return &Result{Status: StatusSuccess, UniversalID: tc.UniversalID, Context: tc}, nil
		case TerminalFailure:
			return &Result{Status: StatusFailure, Context: tc}, nil
		}

		tn, ok := t.Nodes[currentID]
		if !ok {
			return nil, &ConfigError{Tree: t.Name, NodeID: currentID, Reason: "node not defined"}
		}

		action, err := tn.Node.Process(ctx, tc)
		if err != nil {
			t.logger.WithError(err).WithFields(map[string]interface{}{
				"tree": t.Name,
				"node": currentID,
			}).Error("node processing failed")
			if t.metrics != nil {
				t.metrics.NodeErrorsTotal.WithLabelValues(tn.Type).Inc()
			}
			if _, isProcess := err.(*ProcessError); isProcess {
				return nil, err
			}
			return nil, NewProcessError(tn.Type, err)
		}

		// Re-check the builder's contract: a hand-built Action could
		// carry both or neither.
		if (action.Outcome != "") == (len(action.Callbacks) > 0) {
			return nil, NewProcessError(tn.Type, ErrActionExclusivity)
		}

		if action.IsSuspend() {
			if t.metrics != nil {
				t.metrics.NodeProcessTotal.WithLabelValues(tn.Type, "callbacks").Inc()
			}
			return &Result{
				Status:    StatusCallbacks,
				Callbacks: action.Callbacks,
				NodeID:    currentID,
				Context:   tc.advance(action),
			}, nil
		}

		if t.metrics != nil {
			t.metrics.NodeProcessTotal.WithLabelValues(tn.Type, action.Outcome).Inc()
		}

		nextID, ok := tn.Next[action.Outcome]
		if !ok {
			return nil, &ConfigError{
				Tree:   t.Name,
				NodeID: currentID,
				Reason: fmt.Sprintf("outcome %q not mapped to an edge", action.Outcome),
			}
		}

		t.logger.WithFields(map[string]interface{}{
			"tree":    t.Name,
			"node":    currentID,
			"outcome": action.Outcome,
			"next":    nextID,
		}).Debug("node evaluated")

		tc = tc.advance(action)
		// Answered callbacks are consumed by the node that asked for them.
		tc.Callbacks = nil
		currentID = nextID
	}
}

// MaxAuthLevel estimates the strongest authentication level reachable
// down the edge named by (nodeID, outcome), without executing the
// subtree. The second return is false when no node on any reachable path
// declares a level.
func (t *Tree) MaxAuthLevel(nodeID, outcome string) (int, bool) {
	tn, ok := t.Nodes[nodeID]
	if !ok {
		return 0, false
	}
	target, ok := tn.Next[outcome]
	if !ok {
		return 0, false
	}

	max, found := 0, false
	visited := map[string]bool{}
	queue := []string{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == TerminalSuccess || id == TerminalFailure || visited[id] {
			continue
		}
		visited[id] = true
		node, ok := t.Nodes[id]
		if !ok {
			continue
		}
		if provider, ok := node.Node.(MaxAuthLevelProvider); ok {
			if level := provider.MaxAuthLevel(); !found || level > max {
				max, found = level, true
			}
		}
		for _, next := range node.Next {
			queue = append(queue, next)
		}
	}
	return max, found
}
