package authtree

// Request carries the inbound external request a tree evaluation runs
// against: headers, query parameters, client locale, and the SSO token
// when one accompanied the request.
type Request struct {
	Headers    map[string][]string
	Parameters map[string][]string
	ClientIP   string
	Hostname   string
	Locales    []string
	SSOTokenID string
}

// TreeContext is the snapshot passed into a node: shared and transient
// state carried across nodes, the resolved subject (once known), the
// inbound request, and the callback answers from the prior round trip.
// Nodes must never mutate a context they receive; replacement state
// travels on the returned Action.
type TreeContext struct {
	SharedState    map[string]interface{}
	TransientState map[string]interface{}
	UniversalID    string
	Request        *Request
	Callbacks      []Callback
}

// NewTreeContext creates an empty context for the given request.
func NewTreeContext(req *Request) *TreeContext {
	if req == nil {
		req = &Request{}
	}
	return &TreeContext{
		SharedState:    map[string]interface{}{},
		TransientState: map[string]interface{}{},
		Request:        req,
	}
}

// Shared returns a shared-state value and whether it is present.
func (tc *TreeContext) Shared(key string) (interface{}, bool) {
	v, ok := tc.SharedState[key]
	return v, ok
}

// SharedString returns a shared-state value as a string, or "" when
// absent or not a string.
func (tc *TreeContext) SharedString(key string) string {
	if v, ok := tc.SharedState[key].(string); ok {
		return v
	}
	return ""
}

// TransientString returns a transient-state value as a string, or ""
// when absent or not a string.
func (tc *TreeContext) TransientString(key string) string {
	if v, ok := tc.TransientState[key].(string); ok {
		return v
	}
	return ""
}

// copyState shallow-copies a state map.
func copyState(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CopySharedState returns a copy of the shared state safe for a node to
// extend and hand back on its Action.
func (tc *TreeContext) CopySharedState() map[string]interface{} {
	return copyState(tc.SharedState)
}

// CopyTransientState returns a copy of the transient state.
func (tc *TreeContext) CopyTransientState() map[string]interface{} {
	return copyState(tc.TransientState)
}

// advance builds the successor context after an Action: replacement state
// maps substitute wholesale, everything else carries over.
func (tc *TreeContext) advance(action *Action) *TreeContext {
	next := &TreeContext{
		SharedState:    tc.SharedState,
		TransientState: tc.TransientState,
		UniversalID:    tc.UniversalID,
		Request:        tc.Request,
	}
	if action.NewSharedState != nil {
		next.SharedState = action.NewSharedState
	}
	if action.NewTransientState != nil {
		next.TransientState = action.NewTransientState
	}
	if action.UniversalID != "" {
		next.UniversalID = action.UniversalID
	}
	return next
}

// WithRequest returns a copy of the context carrying req in place of the
// request it was suspended with. Resumption re-enters the tree on a new
// external request, so the stored snapshot must be replaced or nodes
// would keep seeing the parameters of the request that suspended them.
func (tc *TreeContext) WithRequest(req *Request) *TreeContext {
	if req == nil {
		req = &Request{}
	}
	next := *tc
	next.Request = req
	return &next
}

// withCallbacks returns a copy of the context carrying the client's
// callback answers, used when resuming a suspended evaluation.
func (tc *TreeContext) withCallbacks(cbs []Callback) *TreeContext {
	next := *tc
	next.Callbacks = cbs
	return &next
}
