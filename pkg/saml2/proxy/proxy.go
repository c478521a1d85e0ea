package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/saml2"
)

// ErrStaleCorrelation indicates a Response arrived for which no
// correlation state exists in either the cache or the repository. The
// proxy session cannot be recovered.
var ErrStaleCorrelation = errors.New("no correlation state for response")

// RealmConfig carries the per-realm proxy policy consulted when the
// inbound request has no Scoping of its own.
type RealmConfig struct {
	ProxyEnabled bool
	AlwaysProxy  bool
}

// Options configures a Proxy.
type Options struct {
	// EntityID is this proxy's own issuer entity ID, stamped on derived
	// requests.
	EntityID string

	// CorrelationTTL bounds how long a proxied round trip may stay in
	// flight. Defaults to 5 minutes.
	CorrelationTTL time.Duration

	Finder     IDPFinder
	Metadata   *MetadataRegistry
	Cache      *CorrelationCache
	Repository TokenRepository

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Proxy orchestrates the IDP-proxy flow: deciding whether to proxy,
// deriving the upstream AuthnRequest, pinning correlation state, and
// resolving responses back to the original requester.
type Proxy struct {
	entityID   string
	ttl        time.Duration
	finder     IDPFinder
	metadata   *MetadataRegistry
	cache      *CorrelationCache
	repository TokenRepository
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// New creates a Proxy from options. Finder, Metadata, and Cache are
// required; Repository may be nil when durable failover is not needed.
func New(opts Options) (*Proxy, error) {
	if opts.Finder == nil {
		return nil, fmt.Errorf("proxy: finder is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("proxy: metadata registry is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("proxy: correlation cache is required")
	}
	if opts.CorrelationTTL <= 0 {
		opts.CorrelationTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	return &Proxy{
		entityID:   opts.EntityID,
		ttl:        opts.CorrelationTTL,
		finder:     opts.Finder,
		metadata:   opts.Metadata,
		cache:      opts.Cache,
		repository: opts.Repository,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// ShouldProxy reports whether the request must be forwarded upstream. An
// explicit Scoping with a proxy count governs when present; otherwise the
// realm's proxy policy decides.
func (p *Proxy) ShouldProxy(original *saml2.AuthnRequest, realm RealmConfig) bool {
	if scoping := original.Scoping(); scoping != nil && scoping.HasProxyCount() {
		return scoping.ProxyCount() > 0
	}
	return realm.ProxyEnabled && realm.AlwaysProxy
}

// FlowStart describes a started proxy flow: the frozen derived request and
// where to send it.
type FlowStart struct {
	Request     *saml2.AuthnRequest
	UpstreamIDP string
	Destination string
	Binding     string

	// SignRequest is set when the upstream's metadata asks for signed
	// AuthnRequests.
	SignRequest bool
}

// StartFlow selects the upstream IDP, derives the upstream AuthnRequest,
// and pins correlation state in the cache and, when configured, the
// durable repository. The returned request is frozen.
func (p *Proxy) StartFlow(ctx context.Context, realm string, original *saml2.AuthnRequest, relayState string) (*FlowStart, error) {
	upstream, err := p.finder.FindUpstream(ctx, realm, original)
	if err != nil {
		return nil, fmt.Errorf("select upstream idp: %w", err)
	}

	binding := original.ProtocolBinding()
	if binding == "" {
		binding = saml2.BindingHTTPPost
	}
	destination, actualBinding, err := p.metadata.SSOEndpoint(upstream, binding)
	if err != nil {
		return nil, err
	}

	derived, err := p.DeriveAuthnRequest(original, destination)
	if err != nil {
		return nil, err
	}
	derived.MakeImmutable()

	corr := &Correlation{
		DerivedRequest:  derived,
		OriginalRequest: original,
		RelayState:      relayState,
	}
	p.cache.Put(derived.ID(), corr)
	if p.metrics != nil {
		p.metrics.ProxyCorrelationsLive.Inc()
	}
	if p.repository != nil {
		if err := p.repository.Save(ctx, derived.ID(), corr, p.ttl); err != nil {
			return nil, fmt.Errorf("save correlation: %w", err)
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"request_id":  derived.ID(),
		"original_id": original.ID(),
		"upstream":    upstream,
		"binding":     actualBinding,
	}).Info("started idp-proxy flow")
	if p.metrics != nil {
		p.metrics.SAMLMessagesTotal.WithLabelValues("AuthnRequest", "outbound").Inc()
	}

	return &FlowStart{
		Request:     derived,
		UpstreamIDP: upstream,
		Destination: destination,
		Binding:     actualBinding,
		SignRequest: p.metadata.WantsSignedRequests(upstream),
	}, nil
}

// DeriveAuthnRequest builds the upstream request standing in for the
// original: fresh ID and issue instant, this proxy as issuer, the upstream
// destination, the original's forceAuthn/isPassive/consent/
// requested-authn-context/extensions/name-id-policy carried over, the
// proxy count decremented by one, and the original requester appended to
// the RequesterID audit trail.
func (p *Proxy) DeriveAuthnRequest(original *saml2.AuthnRequest, destination string) (*saml2.AuthnRequest, error) {
	derived := saml2.NewAuthnRequest()
	if err := derived.SetDestination(destination); err != nil {
		return nil, err
	}
	if err := derived.SetIssuer(saml2.NewIssuerValue(p.entityID)); err != nil {
		return nil, err
	}
	if err := derived.SetForceAuthn(original.ForceAuthn()); err != nil {
		return nil, err
	}
	if err := derived.SetIsPassive(original.IsPassive()); err != nil {
		return nil, err
	}
	if original.Consent() != "" {
		if err := derived.SetConsent(original.Consent()); err != nil {
			return nil, err
		}
	}
	if original.ProtocolBinding() != "" {
		if err := derived.SetProtocolBinding(original.ProtocolBinding()); err != nil {
			return nil, err
		}
	}
	if rac := original.RequestedAuthnContext(); rac != nil {
		if err := derived.SetRequestedAuthnContext(rac); err != nil {
			return nil, err
		}
	}
	if exts := original.Extensions(); exts != nil {
		if err := derived.SetExtensions(exts.Copy()); err != nil {
			return nil, err
		}
	}
	if policy := original.NameIDPolicy(); policy != nil {
		if err := derived.SetNameIDPolicy(policy.Copy()); err != nil {
			return nil, err
		}
	}

	scoping := saml2.NewScoping()
	if orig := original.Scoping(); orig != nil {
		if orig.HasProxyCount() {
			count := orig.ProxyCount() - 1
			if count < 0 {
				count = 0
			}
			if err := scoping.SetProxyCount(count); err != nil {
				return nil, err
			}
		}
		if err := scoping.SetRequesterIDs(orig.RequesterIDs()); err != nil {
			return nil, err
		}
	}
	if issuer := original.Issuer(); issuer != nil {
		if err := scoping.AddRequesterID(issuer.Value()); err != nil {
			return nil, err
		}
	}
	if err := derived.SetScoping(scoping); err != nil {
		return nil, err
	}

	return derived, nil
}

// HandleResponse resolves an upstream Response back to its correlation
// state, consuming the entry. The in-process cache is consulted first; a
// miss falls back to the durable repository, covering failover to another
// instance. Missing state in both is unrecoverable.
func (p *Proxy) HandleResponse(ctx context.Context, resp *saml2.Response) (*Correlation, error) {
	if p.metrics != nil {
		p.metrics.SAMLMessagesTotal.WithLabelValues("Response", "inbound").Inc()
	}
	requestID := resp.InResponseTo()
	if requestID == "" {
		return nil, fmt.Errorf("%w: response has no InResponseTo", ErrStaleCorrelation)
	}

	corr, ok := p.cache.Take(requestID)
	if ok {
		if p.metrics != nil {
			p.metrics.ProxyCorrelationsLive.Dec()
		}
		if p.repository != nil {
			if err := p.repository.Delete(ctx, requestID); err != nil {
				p.logger.WithError(err).WithField("request_id", requestID).Warn("failed to delete durable correlation")
			}
		}
		return corr, nil
	}

	if p.repository != nil {
		corr, err := p.repository.Retrieve(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("retrieve correlation: %w", err)
		}
		if corr != nil {
			p.logger.WithField("request_id", requestID).Info("correlation recovered from durable repository")
			if err := p.repository.Delete(ctx, requestID); err != nil {
				p.logger.WithError(err).WithField("request_id", requestID).Warn("failed to delete durable correlation")
			}
			return corr, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrStaleCorrelation, requestID)
}

// BuildProxiedResponse mints the Response forwarded to the original
// requester after the upstream IDP answered: fresh ID, correlated to the
// original request, addressed to the original ACS, carrying the upstream
// status and assertions unchanged. A subject identifier that does not
// satisfy the original request's NameIDPolicy is an error.
func (p *Proxy) BuildProxiedResponse(corr *Correlation, upstream *saml2.Response) (*saml2.Response, error) {
	if err := checkExpectedNameIDFormat(corr.OriginalRequest, upstream); err != nil {
		return nil, err
	}
	resp := saml2.NewResponse()
	if err := resp.SetInResponseTo(corr.OriginalRequest.ID()); err != nil {
		return nil, err
	}
	if acs := corr.OriginalRequest.AssertionConsumerServiceURL(); acs != "" {
		if err := resp.SetDestination(acs); err != nil {
			return nil, err
		}
	}
	if err := resp.SetIssuer(saml2.NewIssuerValue(p.entityID)); err != nil {
		return nil, err
	}
	if err := resp.SetStatus(upstream.Status()); err != nil {
		return nil, err
	}
	for _, a := range upstream.Assertions() {
		if err := resp.AddAssertion(a); err != nil {
			return nil, err
		}
	}
	resp.MakeImmutable()
	if p.metrics != nil {
		p.metrics.SAMLMessagesTotal.WithLabelValues("Response", "outbound").Inc()
	}
	return resp, nil
}

// checkExpectedNameIDFormat rejects an upstream Response whose subject
// identifiers do not carry the NameID format the original request's
// policy asked for. The derived request forwards the policy upstream, so
// a mismatch means the upstream ignored it and the original requester
// would refuse the identifier.
func checkExpectedNameIDFormat(original *saml2.AuthnRequest, upstream *saml2.Response) error {
	policy := original.NameIDPolicy()
	if policy == nil || policy.Format() == "" || policy.Format() == saml2.NameIDFormatUnspecified {
		return nil
	}
	for _, a := range upstream.Assertions() {
		subject := a.Subject()
		if subject == nil || subject.NameID() == nil {
			continue
		}
		if format := subject.NameID().Format(); format != "" && format != policy.Format() {
			return fmt.Errorf("upstream NameID format %q does not satisfy requested format %q", format, policy.Format())
		}
	}
	return nil
}
