package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarauth/cedar/pkg/saml2"
)

const upstreamMetadataXML = `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://upstream-idp.example.com">
  <md:IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://upstream-idp.example.com/sso/redirect"/>
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://upstream-idp.example.com/sso/post"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`

func testRegistry(t *testing.T) *MetadataRegistry {
	t.Helper()
	reg := NewMetadataRegistry()
	_, err := reg.RegisterXML([]byte(upstreamMetadataXML))
	require.NoError(t, err)
	return reg
}

func testProxy(t *testing.T, repo TokenRepository) *Proxy {
	t.Helper()
	p, err := New(Options{
		EntityID:   "https://proxy-idp.example.com",
		Finder:     &ScopedFinder{DefaultEntityID: "https://upstream-idp.example.com"},
		Metadata:   testRegistry(t),
		Cache:      NewCorrelationCache(32, time.Minute),
		Repository: repo,
	})
	require.NoError(t, err)
	return p
}

func originalRequest(t *testing.T, proxyCount int) *saml2.AuthnRequest {
	t.Helper()
	req := saml2.NewAuthnRequest()
	require.NoError(t, req.SetIssuer(saml2.NewIssuerValue("https://sp.example.com")))
	require.NoError(t, req.SetAssertionConsumerServiceURL("https://sp.example.com/acs"))
	require.NoError(t, req.SetForceAuthn(true))
	if proxyCount >= 0 {
		scoping := saml2.NewScoping()
		require.NoError(t, scoping.SetProxyCount(proxyCount))
		require.NoError(t, req.SetScoping(scoping))
	}
	return req
}

func TestDeriveDecrementsProxyCountAndAppendsRequester(t *testing.T) {
	p := testProxy(t, nil)

	original := originalRequest(t, 2)
	derived, err := p.DeriveAuthnRequest(original, "https://upstream-idp.example.com/sso/post")
	require.NoError(t, err)

	require.NotNil(t, derived.Scoping())
	assert.Equal(t, 1, derived.Scoping().ProxyCount())
	assert.Equal(t, []string{"https://sp.example.com"}, derived.Scoping().RequesterIDs())
	assert.NotEqual(t, original.ID(), derived.ID())
	assert.Equal(t, "https://proxy-idp.example.com", derived.Issuer().Value())
	assert.True(t, derived.ForceAuthn())
}

func TestDeriveAppendsToExistingRequesterChain(t *testing.T) {
	p := testProxy(t, nil)

	original := originalRequest(t, 3)
	require.NoError(t, original.Scoping().AddRequesterID("https://earlier-proxy.example.com"))

	derived, err := p.DeriveAuthnRequest(original, "https://upstream-idp.example.com/sso/post")
	require.NoError(t, err)

	assert.Equal(t, 2, derived.Scoping().ProxyCount())
	assert.Equal(t,
		[]string{"https://earlier-proxy.example.com", "https://sp.example.com"},
		derived.Scoping().RequesterIDs())
}

func TestDeriveProxyCountNeverNegative(t *testing.T) {
	p := testProxy(t, nil)

	derived, err := p.DeriveAuthnRequest(originalRequest(t, 0), "https://upstream-idp.example.com/sso/post")
	require.NoError(t, err)
	assert.Equal(t, 0, derived.Scoping().ProxyCount())
}

func TestShouldProxy(t *testing.T) {
	p := testProxy(t, nil)

	assert.True(t, p.ShouldProxy(originalRequest(t, 2), RealmConfig{}))
	assert.False(t, p.ShouldProxy(originalRequest(t, 0), RealmConfig{ProxyEnabled: true, AlwaysProxy: true}),
		"an exhausted proxy count overrides realm policy")
	assert.True(t, p.ShouldProxy(originalRequest(t, -1), RealmConfig{ProxyEnabled: true, AlwaysProxy: true}))
	assert.False(t, p.ShouldProxy(originalRequest(t, -1), RealmConfig{ProxyEnabled: true}))
	assert.False(t, p.ShouldProxy(originalRequest(t, -1), RealmConfig{}))
}

func TestSSOEndpointBindingMatchAndFallback(t *testing.T) {
	reg := testRegistry(t)

	loc, binding, err := reg.SSOEndpoint("https://upstream-idp.example.com", saml2.BindingHTTPPost)
	require.NoError(t, err)
	assert.Equal(t, "https://upstream-idp.example.com/sso/post", loc)
	assert.Equal(t, saml2.BindingHTTPPost, binding)

	// Unknown binding falls back to the first declared endpoint.
	loc, binding, err = reg.SSOEndpoint("https://upstream-idp.example.com", "urn:oasis:names:tc:SAML:2.0:bindings:SOAP")
	require.NoError(t, err)
	assert.Equal(t, "https://upstream-idp.example.com/sso/redirect", loc)
	assert.Equal(t, saml2.BindingHTTPRedirect, binding)

	_, _, err = reg.SSOEndpoint("https://unknown.example.com", saml2.BindingHTTPPost)
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestWantsSignedRequests(t *testing.T) {
	reg := testRegistry(t)
	assert.False(t, reg.WantsSignedRequests("https://upstream-idp.example.com"))
	assert.False(t, reg.WantsSignedRequests("https://unknown.example.com"))

	signing := `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://strict-idp.example.com">
  <md:IDPSSODescriptor WantAuthnRequestsSigned="true" protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://strict-idp.example.com/sso"/>
  </md:IDPSSODescriptor>
</md:EntityDescriptor>`
	_, err := reg.RegisterXML([]byte(signing))
	require.NoError(t, err)
	assert.True(t, reg.WantsSignedRequests("https://strict-idp.example.com"))
}

func TestStartFlowAndHandleResponse(t *testing.T) {
	p := testProxy(t, nil)
	ctx := context.Background()

	original := originalRequest(t, 2)
	flow, err := p.StartFlow(ctx, "/", original, "relay-xyz")
	require.NoError(t, err)
	assert.Equal(t, "https://upstream-idp.example.com", flow.UpstreamIDP)
	assert.Equal(t, "https://upstream-idp.example.com/sso/post", flow.Destination)
	assert.ErrorIs(t, flow.Request.SetID("_tamper"), saml2.ErrImmutable)

	resp := saml2.NewResponse()
	require.NoError(t, resp.SetInResponseTo(flow.Request.ID()))
	require.NoError(t, resp.SetIssuer(saml2.NewIssuerValue("https://upstream-idp.example.com")))
	require.NoError(t, resp.SetStatus(saml2.NewSuccessStatus()))

	corr, err := p.HandleResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), corr.OriginalRequest.ID())
	assert.Equal(t, "relay-xyz", corr.RelayState)

	// Consumed state cannot be replayed.
	_, err = p.HandleResponse(ctx, resp)
	assert.ErrorIs(t, err, ErrStaleCorrelation)
}

func TestHandleResponseFallsBackToRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisTokenRepository(client, "")

	p := testProxy(t, repo)
	ctx := context.Background()

	original := originalRequest(t, 2)
	flow, err := p.StartFlow(ctx, "/", original, "relay-xyz")
	require.NoError(t, err)

	// Simulate failover: the instance handling the response has a cold
	// in-process cache but shares the durable repository.
	failover := testProxy(t, repo)

	resp := saml2.NewResponse()
	require.NoError(t, resp.SetInResponseTo(flow.Request.ID()))
	require.NoError(t, resp.SetStatus(saml2.NewSuccessStatus()))

	corr, err := failover.HandleResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), corr.OriginalRequest.ID())
	assert.Equal(t, "relay-xyz", corr.RelayState)

	_, err = failover.HandleResponse(ctx, resp)
	assert.ErrorIs(t, err, ErrStaleCorrelation)
}

func TestHandleResponseWithoutInResponseTo(t *testing.T) {
	p := testProxy(t, nil)

	resp := saml2.NewResponse()
	require.NoError(t, resp.SetStatus(saml2.NewSuccessStatus()))

	_, err := p.HandleResponse(context.Background(), resp)
	assert.ErrorIs(t, err, ErrStaleCorrelation)
}

func TestBuildProxiedResponse(t *testing.T) {
	p := testProxy(t, nil)

	original := originalRequest(t, 2)
	corr := &Correlation{OriginalRequest: original, RelayState: "relay-xyz"}

	upstream := saml2.NewResponse()
	require.NoError(t, upstream.SetStatus(saml2.NewSuccessStatus()))
	assertion := saml2.NewAssertion()
	require.NoError(t, assertion.SetIssuer(saml2.NewIssuerValue("https://upstream-idp.example.com")))
	require.NoError(t, upstream.AddAssertion(assertion))

	forwarded, err := p.BuildProxiedResponse(corr, upstream)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), forwarded.InResponseTo())
	assert.Equal(t, "https://sp.example.com/acs", forwarded.Destination())
	assert.Equal(t, "https://proxy-idp.example.com", forwarded.Issuer().Value())
	assert.True(t, forwarded.Status().IsSuccess())
	assert.Len(t, forwarded.Assertions(), 1)
	assert.ErrorIs(t, forwarded.SetID("_tamper"), saml2.ErrImmutable)
}

func withNameIDPolicy(t *testing.T, req *saml2.AuthnRequest, format string) *saml2.AuthnRequest {
	t.Helper()
	policy := saml2.NewNameIDPolicy()
	require.NoError(t, policy.SetFormat(format))
	require.NoError(t, policy.SetAllowCreate(true))
	require.NoError(t, req.SetNameIDPolicy(policy))
	return req
}

func upstreamResponseWithNameID(t *testing.T, format string) *saml2.Response {
	t.Helper()
	nameID := saml2.NewNameID()
	require.NoError(t, nameID.SetValue("subject-1"))
	if format != "" {
		require.NoError(t, nameID.SetFormat(format))
	}
	subject := saml2.NewSubject()
	require.NoError(t, subject.SetNameID(nameID))
	assertion := saml2.NewAssertion()
	require.NoError(t, assertion.SetIssuer(saml2.NewIssuerValue("https://upstream-idp.example.com")))
	require.NoError(t, assertion.SetSubject(subject))
	resp := saml2.NewResponse()
	require.NoError(t, resp.SetStatus(saml2.NewSuccessStatus()))
	require.NoError(t, resp.AddAssertion(assertion))
	return resp
}

func TestDeriveCarriesNameIDPolicy(t *testing.T) {
	p := testProxy(t, nil)

	original := withNameIDPolicy(t, originalRequest(t, 2), saml2.NameIDFormatPersistent)
	derived, err := p.DeriveAuthnRequest(original, "https://upstream-idp.example.com/sso/post")
	require.NoError(t, err)

	policy := derived.NameIDPolicy()
	require.NotNil(t, policy)
	assert.Equal(t, saml2.NameIDFormatPersistent, policy.Format())
	assert.True(t, policy.AllowCreate())
}

func TestProxiedResponseHonorsRequestedNameIDFormat(t *testing.T) {
	p := testProxy(t, nil)
	original := withNameIDPolicy(t, originalRequest(t, 2), saml2.NameIDFormatPersistent)
	corr := &Correlation{OriginalRequest: original}

	forwarded, err := p.BuildProxiedResponse(corr, upstreamResponseWithNameID(t, saml2.NameIDFormatPersistent))
	require.NoError(t, err)
	require.Len(t, forwarded.Assertions(), 1)
	assert.Equal(t, saml2.NameIDFormatPersistent, forwarded.Assertions()[0].Subject().NameID().Format())

	// An upstream identifier in a different format cannot satisfy the
	// original requester's policy.
	_, err = p.BuildProxiedResponse(corr, upstreamResponseWithNameID(t, saml2.NameIDFormatTransient))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not satisfy")

	// A format-less identifier and an unspecified policy both pass.
	_, err = p.BuildProxiedResponse(corr, upstreamResponseWithNameID(t, ""))
	assert.NoError(t, err)
	lax := &Correlation{OriginalRequest: originalRequest(t, 2)}
	_, err = p.BuildProxiedResponse(lax, upstreamResponseWithNameID(t, saml2.NameIDFormatTransient))
	assert.NoError(t, err)
}

func TestRedisRepositoryExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisTokenRepository(client, "")
	ctx := context.Background()

	original := originalRequest(t, 1)
	derived := saml2.NewAuthnRequest()
	require.NoError(t, derived.SetIssuer(saml2.NewIssuerValue("https://proxy-idp.example.com")))

	corr := &Correlation{DerivedRequest: derived, OriginalRequest: original, RelayState: "rs"}
	require.NoError(t, repo.Save(ctx, derived.ID(), corr, time.Minute))

	got, err := repo.Retrieve(ctx, derived.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rs", got.RelayState)

	mr.FastForward(2 * time.Minute)

	got, err = repo.Retrieve(ctx, derived.ID())
	require.NoError(t, err)
	assert.Nil(t, got, "expired correlation reads as a miss")
}

func TestScopedFinderPrefersIDPList(t *testing.T) {
	finder := &ScopedFinder{DefaultEntityID: "https://default.example.com"}

	req := originalRequest(t, 2)
	list := saml2.NewIDPList()
	require.NoError(t, list.AddEntry(saml2.NewIDPEntry("https://scoped.example.com")))
	require.NoError(t, req.Scoping().SetIDPList(list))

	entityID, err := finder.FindUpstream(context.Background(), "/", req)
	require.NoError(t, err)
	assert.Equal(t, "https://scoped.example.com", entityID)

	entityID, err = finder.FindUpstream(context.Background(), "/", originalRequest(t, -1))
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com", entityID)

	_, err = (&ScopedFinder{}).FindUpstream(context.Background(), "/", originalRequest(t, -1))
	assert.ErrorIs(t, err, ErrNoUpstreamIDP)
}
