// Package nodes provides the built-in authentication node types: input
// collectors, timers, scripted decisions, social-provider handlers, OTP
// generation and delivery, WebAuthn device storage, and auth-level
// adjustment. Nodes hold configuration plus injected collaborators and
// are registered against an authtree.Registry with RegisterAll.
package nodes
