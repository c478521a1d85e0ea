// Package authtree implements the authentication tree engine: a directed
// graph of nodes evaluated from a start node to a terminal outcome.
//
// Each node is a pure function of (config, context, injected
// collaborators) returning an Action that either names an outcome, which
// selects the next edge, or carries callbacks, which suspends evaluation
// until the client answers. Context is never mutated in place; nodes
// return replacement state on the Action and the engine builds the next
// context copy-on-write.
//
// Tree definitions are plain data loaded from YAML (see Loader) and can be
// hot-reloaded from disk (see Watcher).
package authtree
