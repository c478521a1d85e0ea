package proxy

import (
	"context"
	"errors"

	"github.com/cedarauth/cedar/pkg/saml2"
)

// ErrNoUpstreamIDP indicates no finder strategy produced an upstream IDP
// for the request.
var ErrNoUpstreamIDP = errors.New("no upstream idp selected")

// IDPFinder selects the upstream IDP to proxy an authentication request
// to. Implementations may inspect the request's Scoping IDPList, realm
// configuration, or any external policy source.
type IDPFinder interface {
	FindUpstream(ctx context.Context, realm string, original *saml2.AuthnRequest) (entityID string, err error)
}

// FinderFunc adapts a function to the IDPFinder interface.
type FinderFunc func(ctx context.Context, realm string, original *saml2.AuthnRequest) (string, error)

// FindUpstream calls f.
func (f FinderFunc) FindUpstream(ctx context.Context, realm string, original *saml2.AuthnRequest) (string, error) {
	return f(ctx, realm, original)
}

// ScopedFinder prefers the first entry of the request's Scoping IDPList
// and falls back to a configured default entity ID.
type ScopedFinder struct {
	DefaultEntityID string
}

// FindUpstream returns the request's first scoped IDP entry, the default,
// or ErrNoUpstreamIDP when neither is available.
func (f *ScopedFinder) FindUpstream(_ context.Context, _ string, original *saml2.AuthnRequest) (string, error) {
	if scoping := original.Scoping(); scoping != nil {
		if list := scoping.IDPList(); list != nil {
			if entries := list.Entries(); len(entries) > 0 {
				return entries[0].ProviderID(), nil
			}
		}
	}
	if f.DefaultEntityID != "" {
		return f.DefaultEntityID, nil
	}
	return "", ErrNoUpstreamIDP
}
