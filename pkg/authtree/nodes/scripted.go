package nodes

import (
	"context"
	"fmt"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/script"
)

// ScriptedDecisionConfig configures a scripted decision node.
type ScriptedDecisionConfig struct {
	Source   string
	Language string
	// Outcomes is the allow-list of outcome values the script may return.
	Outcomes []string
	Realm    string
}

// ScriptedDecisionNode evaluates a configured script and follows the
// outcome edge the script returns. The script sees the tree state and
// request through its bindings and must return one of the configured
// outcome strings.
type ScriptedDecisionNode struct {
	cfg    ScriptedDecisionConfig
	engine script.Engine
	logger *observability.Logger
}

// NewScriptedDecisionNode creates a scripted decision node.
func NewScriptedDecisionNode(cfg ScriptedDecisionConfig, engine script.Engine, logger *observability.Logger) *ScriptedDecisionNode {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ScriptedDecisionNode{cfg: cfg, engine: engine, logger: logger}
}

// Process runs the script. A script failure, a non-string result, or an
// outcome outside the allow-list aborts the evaluation.
func (n *ScriptedDecisionNode) Process(ctx context.Context, tc *authtree.TreeContext) (*authtree.Action, error) {
	if n.engine == nil {
		return nil, authtree.NewProcessErrorf(TypeScriptedDecision, "no script engine configured")
	}

	bindings := script.Bindings{
		"sharedState":    tc.CopySharedState(),
		"transientState": tc.CopyTransientState(),
		"headers":        tc.Request.Headers,
		"queryParams":    tc.Request.Parameters,
		"realm":          n.cfg.Realm,
		"logger":         n.logger,
	}

	result, err := n.engine.Evaluate(ctx, n.cfg.Source, n.cfg.Language, bindings)
	if err != nil {
		return nil, authtree.NewProcessError(TypeScriptedDecision, fmt.Errorf("evaluate script: %w", err))
	}

	outcome, ok := result.(string)
	if !ok {
		return nil, authtree.NewProcessErrorf(TypeScriptedDecision, "script returned %T, want string outcome", result)
	}
	for _, allowed := range n.cfg.Outcomes {
		if outcome == allowed {
			return authtree.GoTo(outcome).Build()
		}
	}
	return nil, authtree.NewProcessErrorf(TypeScriptedDecision, "script outcome %q is not in the configured outcomes", outcome)
}

// Inputs implements authtree.Node.
func (n *ScriptedDecisionNode) Inputs() []string { return nil }

// Outcomes implements authtree.Node.
func (n *ScriptedDecisionNode) Outcomes() []string { return n.cfg.Outcomes }
