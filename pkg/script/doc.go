// Package script defines the script-engine collaborator contract used by
// scripted decision and attribute-transform nodes.
//
// Script evaluation is an external boundary: the core passes source,
// language tag, and bindings (shared state, transient state, request
// headers, query parameters, realm, logger) to an Engine supplied by the
// embedding application and consumes the returned value.
package script
