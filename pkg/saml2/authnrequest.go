package saml2

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// AuthnRequest is the samlp:AuthnRequest element. Schema order: Issuer,
// Signature, Extensions, Subject, NameIDPolicy, Conditions,
// RequestedAuthnContext, Scoping.
type AuthnRequest struct {
	mutability
	id                          string
	issueInstant                time.Time
	destination                 string
	consent                     string
	forceAuthn                  bool
	isPassive                   bool
	protocolBinding             string
	assertionConsumerServiceURL string
	assertionConsumerSvcIndex   *int
	providerName                string

	issuer       *Issuer
	signature    *etree.Element
	extensions   *Extensions
	subject      *Subject
	nameIDPolicy *NameIDPolicy
	conditions   *Conditions
	requestedCtx *RequestedAuthnContext
	scoping      *Scoping
}

// NewAuthnRequest creates a mutable AuthnRequest with a fresh ID and the
// current issue instant.
func NewAuthnRequest() *AuthnRequest {
	return &AuthnRequest{id: NewID(), issueInstant: time.Now().UTC()}
}

// ParseAuthnRequest builds a frozen AuthnRequest from an XML element.
func ParseAuthnRequest(el *etree.Element) (*AuthnRequest, error) {
	if err := checkTag(el, "AuthnRequest"); err != nil {
		return nil, err
	}
	id, err := requiredAttr(el, "AuthnRequest", "ID")
	if err != nil {
		return nil, err
	}
	version, err := requiredAttr(el, "AuthnRequest", "Version")
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, parseErr("AuthnRequest", ErrBadValue, "Version "+version)
	}
	instantValue, err := requiredAttr(el, "AuthnRequest", "IssueInstant")
	if err != nil {
		return nil, err
	}

	children, err := orderedChildren(el, "AuthnRequest", []childSlot{
		{name: "Issuer", max: 1},
		{name: "Signature", max: 1},
		{name: "Extensions", max: 1},
		{name: "Subject", max: 1},
		{name: "NameIDPolicy", max: 1},
		{name: "Conditions", max: 1},
		{name: "RequestedAuthnContext", max: 1},
		{name: "Scoping", max: 1},
	})
	if err != nil {
		return nil, err
	}

	r := &AuthnRequest{
		id:                          id,
		destination:                 el.SelectAttrValue("Destination", ""),
		consent:                     el.SelectAttrValue("Consent", ""),
		forceAuthn:                  el.SelectAttrValue("ForceAuthn", "") == "true",
		isPassive:                   el.SelectAttrValue("IsPassive", "") == "true",
		protocolBinding:             el.SelectAttrValue("ProtocolBinding", ""),
		assertionConsumerServiceURL: el.SelectAttrValue("AssertionConsumerServiceURL", ""),
		providerName:                el.SelectAttrValue("ProviderName", ""),
	}
	if r.issueInstant, err = parseTime("AuthnRequest", instantValue); err != nil {
		return nil, err
	}
	if v := el.SelectAttrValue("AssertionConsumerServiceIndex", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, parseErr("AuthnRequest", ErrBadValue, "AssertionConsumerServiceIndex "+v)
		}
		r.assertionConsumerSvcIndex = &n
	}

	if issuers := children["Issuer"]; len(issuers) == 1 {
		if r.issuer, err = ParseIssuer(issuers[0]); err != nil {
			return nil, err
		}
	}
	if sigs := children["Signature"]; len(sigs) == 1 {
		r.signature = sigs[0].Copy()
	}
	if exts := children["Extensions"]; len(exts) == 1 {
		if r.extensions, err = ParseExtensions(exts[0]); err != nil {
			return nil, err
		}
	}
	if subjects := children["Subject"]; len(subjects) == 1 {
		if r.subject, err = ParseSubject(subjects[0]); err != nil {
			return nil, err
		}
	}
	if policies := children["NameIDPolicy"]; len(policies) == 1 {
		if r.nameIDPolicy, err = ParseNameIDPolicy(policies[0]); err != nil {
			return nil, err
		}
	}
	if conds := children["Conditions"]; len(conds) == 1 {
		if r.conditions, err = ParseConditions(conds[0]); err != nil {
			return nil, err
		}
	}
	if ctxs := children["RequestedAuthnContext"]; len(ctxs) == 1 {
		if r.requestedCtx, err = ParseRequestedAuthnContext(ctxs[0]); err != nil {
			return nil, err
		}
	}
	if scopings := children["Scoping"]; len(scopings) == 1 {
		if r.scoping, err = ParseScoping(scopings[0]); err != nil {
			return nil, err
		}
	}
	r.MakeImmutable()
	return r, nil
}

// ParseAuthnRequestString parses an AuthnRequest from an XML string.
func ParseAuthnRequestString(xml string) (*AuthnRequest, error) {
	el, err := ParseElement(xml)
	if err != nil {
		return nil, err
	}
	return ParseAuthnRequest(el)
}

// ID returns the request identifier.
func (r *AuthnRequest) ID() string { return r.id }

// IssueInstant returns the issue instant.
func (r *AuthnRequest) IssueInstant() time.Time { return r.issueInstant }

// Destination returns the Destination attribute.
func (r *AuthnRequest) Destination() string { return r.destination }

// Consent returns the Consent attribute.
func (r *AuthnRequest) Consent() string { return r.consent }

// ForceAuthn reports the ForceAuthn flag.
func (r *AuthnRequest) ForceAuthn() bool { return r.forceAuthn }

// IsPassive reports the IsPassive flag.
func (r *AuthnRequest) IsPassive() bool { return r.isPassive }

// ProtocolBinding returns the requested response binding URI.
func (r *AuthnRequest) ProtocolBinding() string { return r.protocolBinding }

// AssertionConsumerServiceURL returns the ACS URL attribute.
func (r *AuthnRequest) AssertionConsumerServiceURL() string {
	return r.assertionConsumerServiceURL
}

// ProviderName returns the ProviderName attribute.
func (r *AuthnRequest) ProviderName() string { return r.providerName }

// Issuer returns the Issuer, if any.
func (r *AuthnRequest) Issuer() *Issuer { return r.issuer }

// Signature returns a copy of the enveloped signature, if any.
func (r *AuthnRequest) Signature() *etree.Element {
	if r.signature == nil {
		return nil
	}
	return r.signature.Copy()
}

// Extensions returns the Extensions, if any.
func (r *AuthnRequest) Extensions() *Extensions { return r.extensions }

// Subject returns the Subject, if any.
func (r *AuthnRequest) Subject() *Subject { return r.subject }

// NameIDPolicy returns the NameIDPolicy, if any.
func (r *AuthnRequest) NameIDPolicy() *NameIDPolicy { return r.nameIDPolicy }

// Conditions returns the Conditions, if any.
func (r *AuthnRequest) Conditions() *Conditions { return r.conditions }

// RequestedAuthnContext returns the RequestedAuthnContext, if any.
func (r *AuthnRequest) RequestedAuthnContext() *RequestedAuthnContext {
	return r.requestedCtx
}

// Scoping returns the Scoping, if any.
func (r *AuthnRequest) Scoping() *Scoping { return r.scoping }

// SetID sets the request identifier.
func (r *AuthnRequest) SetID(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.id = v
	return nil
}

// SetIssueInstant sets the issue instant.
func (r *AuthnRequest) SetIssueInstant(t time.Time) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issueInstant = t.UTC()
	return nil
}

// SetDestination sets the Destination attribute.
func (r *AuthnRequest) SetDestination(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.destination = v
	return nil
}

// SetConsent sets the Consent attribute.
func (r *AuthnRequest) SetConsent(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.consent = v
	return nil
}

// SetForceAuthn sets the ForceAuthn flag.
func (r *AuthnRequest) SetForceAuthn(v bool) error {
	if err := r.check(); err != nil {
		return err
	}
	r.forceAuthn = v
	return nil
}

// SetIsPassive sets the IsPassive flag.
func (r *AuthnRequest) SetIsPassive(v bool) error {
	if err := r.check(); err != nil {
		return err
	}
	r.isPassive = v
	return nil
}

// SetProtocolBinding sets the requested response binding URI.
func (r *AuthnRequest) SetProtocolBinding(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.protocolBinding = v
	return nil
}

// SetAssertionConsumerServiceURL sets the ACS URL attribute.
func (r *AuthnRequest) SetAssertionConsumerServiceURL(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.assertionConsumerServiceURL = v
	return nil
}

// SetProviderName sets the ProviderName attribute.
func (r *AuthnRequest) SetProviderName(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.providerName = v
	return nil
}

// SetIssuer attaches the Issuer.
func (r *AuthnRequest) SetIssuer(i *Issuer) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issuer = i
	return nil
}

// SetSignature attaches an enveloped signature element.
func (r *AuthnRequest) SetSignature(el *etree.Element) error {
	if err := r.check(); err != nil {
		return err
	}
	r.signature = el.Copy()
	return nil
}

// SetExtensions attaches the Extensions.
func (r *AuthnRequest) SetExtensions(e *Extensions) error {
	if err := r.check(); err != nil {
		return err
	}
	r.extensions = e
	return nil
}

// SetSubject attaches the Subject.
func (r *AuthnRequest) SetSubject(s *Subject) error {
	if err := r.check(); err != nil {
		return err
	}
	r.subject = s
	return nil
}

// SetNameIDPolicy attaches the NameIDPolicy.
func (r *AuthnRequest) SetNameIDPolicy(p *NameIDPolicy) error {
	if err := r.check(); err != nil {
		return err
	}
	r.nameIDPolicy = p
	return nil
}

// SetConditions attaches the Conditions.
func (r *AuthnRequest) SetConditions(c *Conditions) error {
	if err := r.check(); err != nil {
		return err
	}
	r.conditions = c
	return nil
}

// SetRequestedAuthnContext attaches the RequestedAuthnContext.
func (r *AuthnRequest) SetRequestedAuthnContext(c *RequestedAuthnContext) error {
	if err := r.check(); err != nil {
		return err
	}
	r.requestedCtx = c
	return nil
}

// SetScoping attaches the Scoping.
func (r *AuthnRequest) SetScoping(s *Scoping) error {
	if err := r.check(); err != nil {
		return err
	}
	r.scoping = s
	return nil
}

// MakeImmutable freezes the request and all children.
func (r *AuthnRequest) MakeImmutable() {
	if r.issuer != nil {
		r.issuer.MakeImmutable()
	}
	if r.extensions != nil {
		r.extensions.MakeImmutable()
	}
	if r.subject != nil {
		r.subject.MakeImmutable()
	}
	if r.nameIDPolicy != nil {
		r.nameIDPolicy.MakeImmutable()
	}
	if r.conditions != nil {
		r.conditions.MakeImmutable()
	}
	if r.requestedCtx != nil {
		r.requestedCtx.MakeImmutable()
	}
	if r.scoping != nil {
		r.scoping.MakeImmutable()
	}
	r.freeze()
}

// Element renders the AuthnRequest.
func (r *AuthnRequest) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("AuthnRequest", opts)
	el.CreateAttr("ID", r.id)
	el.CreateAttr("Version", ProtocolVersion)
	el.CreateAttr("IssueInstant", formatTime(r.issueInstant))
	setOptionalAttr(el, "Destination", r.destination)
	setOptionalAttr(el, "Consent", r.consent)
	if r.forceAuthn {
		el.CreateAttr("ForceAuthn", "true")
	}
	if r.isPassive {
		el.CreateAttr("IsPassive", "true")
	}
	setOptionalAttr(el, "ProtocolBinding", r.protocolBinding)
	setOptionalAttr(el, "AssertionConsumerServiceURL", r.assertionConsumerServiceURL)
	if r.assertionConsumerSvcIndex != nil {
		el.CreateAttr("AssertionConsumerServiceIndex", strconv.Itoa(*r.assertionConsumerSvcIndex))
	}
	setOptionalAttr(el, "ProviderName", r.providerName)

	if r.issuer != nil {
		child, err := r.issuer.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.signature != nil {
		el.AddChild(r.signature.Copy())
	}
	if r.extensions != nil {
		child, err := r.extensions.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.subject != nil {
		child, err := r.subject.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.nameIDPolicy != nil {
		child, err := r.nameIDPolicy.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.conditions != nil {
		child, err := r.conditions.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.requestedCtx != nil {
		child, err := r.requestedCtx.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.scoping != nil {
		child, err := r.scoping.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
