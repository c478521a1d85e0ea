package authtree

import "context"

// Node is one unit of authentication logic. Implementations hold only
// configuration and injected collaborators; Process must not keep state
// between invocations.
type Node interface {
	// Process evaluates the node against the context and returns an
	// Action. Failures are returned as errors and abort the evaluation.
	Process(ctx context.Context, tc *TreeContext) (*Action, error)

	// Inputs names the shared-state keys the node reads.
	Inputs() []string

	// Outcomes names every outcome the node can produce.
	Outcomes() []string
}

// MaxAuthLevelProvider is optionally implemented by nodes that raise the
// authentication level, letting the engine estimate the strongest level
// reachable down an edge without executing it.
type MaxAuthLevelProvider interface {
	MaxAuthLevel() int
}
