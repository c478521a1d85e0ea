// Package binding implements the SAML 2.0 HTTP-POST and HTTP-Redirect
// bindings: encoding protocol objects for transport, decoding received
// messages, and the two signature styles the bindings use (enveloped XML
// signatures for POST, detached query signatures for Redirect).
package binding
