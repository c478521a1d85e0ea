package authtree

import "fmt"

// ProcessError wraps a failure inside a node's Process call. It aborts the
// current evaluation; state accumulated up to the failing node is
// discarded.
type ProcessError struct {
	NodeType string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeType, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// NewProcessError wraps err as a node processing failure.
func NewProcessError(nodeType string, err error) *ProcessError {
	return &ProcessError{NodeType: nodeType, Err: err}
}

// NewProcessErrorf formats a node processing failure.
func NewProcessErrorf(nodeType, format string, args ...interface{}) *ProcessError {
	return &ProcessError{NodeType: nodeType, Err: fmt.Errorf(format, args...)}
}

// ConfigError indicates a malformed tree definition: a missing node, an
// unmapped outcome, or invalid node configuration. Fatal and never
// retried.
type ConfigError struct {
	Tree   string
	NodeID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("tree %q node %q: %s", e.Tree, e.NodeID, e.Reason)
	}
	return fmt.Sprintf("tree %q: %s", e.Tree, e.Reason)
}
