package script

import "context"

// Bindings carries the variables exposed to an evaluated script. Keys are
// binding names as seen by the script source.
type Bindings map[string]interface{}

// Engine is the script-evaluation collaborator used by scripted decision and
// transform nodes. Cedar deliberately does not embed a scripting runtime;
// the embedding application supplies one (JavaScript, Groovy, Lua) behind
// this narrow interface.
type Engine interface {
	// Evaluate runs source in the given language with the supplied bindings
	// and returns the script's result value.
	Evaluate(ctx context.Context, source, language string, bindings Bindings) (interface{}, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, source, language string, bindings Bindings) (interface{}, error)

// Evaluate implements Engine.
func (f Func) Evaluate(ctx context.Context, source, language string, bindings Bindings) (interface{}, error) {
	return f(ctx, source, language, bindings)
}
