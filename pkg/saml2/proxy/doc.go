// Package proxy implements IDP-proxy orchestration: deriving an upstream
// AuthnRequest from an inbound SP request, correlating the asynchronous
// round trip through an in-process cache backed by a durable token
// repository, and resolving the upstream IDP's endpoints from metadata.
package proxy
