package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// Response is the samlp:Response element. Schema order: Issuer, Signature,
// Extensions, Status, Assertion*.
type Response struct {
	mutability
	id           string
	inResponseTo string
	issueInstant time.Time
	destination  string
	consent      string

	issuer     *Issuer
	signature  *etree.Element
	extensions *Extensions
	status     *Status
	assertions []*Assertion
}

// NewResponse creates a mutable Response with a fresh ID and the current
// issue instant.
func NewResponse() *Response {
	return &Response{id: NewID(), issueInstant: time.Now().UTC()}
}

// ParseResponse builds a frozen Response from an XML element.
func ParseResponse(el *etree.Element) (*Response, error) {
	if err := checkTag(el, "Response"); err != nil {
		return nil, err
	}
	id, err := requiredAttr(el, "Response", "ID")
	if err != nil {
		return nil, err
	}
	version, err := requiredAttr(el, "Response", "Version")
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, parseErr("Response", ErrBadValue, "Version "+version)
	}
	instantValue, err := requiredAttr(el, "Response", "IssueInstant")
	if err != nil {
		return nil, err
	}

	children, err := orderedChildren(el, "Response", []childSlot{
		{name: "Issuer", max: 1},
		{name: "Signature", max: 1},
		{name: "Extensions", max: 1},
		{name: "Status", max: 1},
		{name: "Assertion"},
	})
	if err != nil {
		return nil, err
	}
	if len(children["Status"]) == 0 {
		return nil, parseErr("Response", ErrMissingElement, "Status")
	}

	r := &Response{
		id:           id,
		inResponseTo: el.SelectAttrValue("InResponseTo", ""),
		destination:  el.SelectAttrValue("Destination", ""),
		consent:      el.SelectAttrValue("Consent", ""),
	}
	if r.issueInstant, err = parseTime("Response", instantValue); err != nil {
		return nil, err
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
	if r.status, err = ParseStatus(children["Status"][0]); err != nil {
		return nil, err
	}
	for _, c := range children["Assertion"] {
		a, err := ParseAssertion(c)
		if err != nil {
			return nil, err
		}
		r.assertions = append(r.assertions, a)
	}
	r.MakeImmutable()
	return r, nil
}

// ParseResponseString parses a Response from an XML string.
func ParseResponseString(xml string) (*Response, error) {
	el, err := ParseElement(xml)
	if err != nil {
		return nil, err
	}
	return ParseResponse(el)
}

// ID returns the response identifier.
func (r *Response) ID() string { return r.id }

// InResponseTo returns the correlated request ID.
func (r *Response) InResponseTo() string { return r.inResponseTo }

// IssueInstant returns the issue instant.
func (r *Response) IssueInstant() time.Time { return r.issueInstant }

// Destination returns the Destination attribute.
func (r *Response) Destination() string { return r.destination }

// Consent returns the Consent attribute.
func (r *Response) Consent() string { return r.consent }

// Issuer returns the Issuer, if any.
func (r *Response) Issuer() *Issuer { return r.issuer }

// Signature returns a copy of the enveloped signature, if any.
func (r *Response) Signature() *etree.Element {
	if r.signature == nil {
		return nil
	}
	return r.signature.Copy()
}

// Extensions returns the Extensions, if any.
func (r *Response) Extensions() *Extensions { return r.extensions }

// Status returns the Status.
func (r *Response) Status() *Status { return r.status }

// Assertions returns the carried assertions.
func (r *Response) Assertions() []*Assertion {
	return append([]*Assertion(nil), r.assertions...)
}

// SetID sets the response identifier.
func (r *Response) SetID(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.id = v
	return nil
}

// SetInResponseTo sets the correlated request ID.
func (r *Response) SetInResponseTo(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.inResponseTo = v
	return nil
}

// SetIssueInstant sets the issue instant.
func (r *Response) SetIssueInstant(t time.Time) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issueInstant = t.UTC()
	return nil
}

// SetDestination sets the Destination attribute.
func (r *Response) SetDestination(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.destination = v
	return nil
}

// SetConsent sets the Consent attribute.
func (r *Response) SetConsent(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.consent = v
	return nil
}

// SetIssuer attaches the Issuer.
func (r *Response) SetIssuer(i *Issuer) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issuer = i
	return nil
}

// SetSignature attaches an enveloped signature element.
func (r *Response) SetSignature(el *etree.Element) error {
	if err := r.check(); err != nil {
		return err
	}
	r.signature = el.Copy()
	return nil
}

// SetExtensions attaches the Extensions.
func (r *Response) SetExtensions(e *Extensions) error {
	if err := r.check(); err != nil {
		return err
	}
	r.extensions = e
	return nil
}

// SetStatus attaches the Status.
func (r *Response) SetStatus(s *Status) error {
	if err := r.check(); err != nil {
		return err
	}
	r.status = s
	return nil
}

// AddAssertion appends an Assertion.
func (r *Response) AddAssertion(a *Assertion) error {
	if err := r.check(); err != nil {
		return err
	}
	r.assertions = append(r.assertions, a)
	return nil
}

// MakeImmutable freezes the response and all children.
func (r *Response) MakeImmutable() {
	if r.issuer != nil {
		r.issuer.MakeImmutable()
	}
	if r.extensions != nil {
		r.extensions.MakeImmutable()
	}
	if r.status != nil {
		r.status.MakeImmutable()
	}
	for _, a := range r.assertions {
		a.MakeImmutable()
	}
	r.freeze()
}

// Element renders the Response.
func (r *Response) Element(opts SerializeOptions) (*etree.Element, error) {
	if r.status == nil {
		return nil, parseErr("Response", ErrMissingElement, "Status")
	}
	el := newProtocolElement("Response", opts)
	el.CreateAttr("ID", r.id)
	setOptionalAttr(el, "InResponseTo", r.inResponseTo)
	el.CreateAttr("Version", ProtocolVersion)
	el.CreateAttr("IssueInstant", formatTime(r.issueInstant))
	setOptionalAttr(el, "Destination", r.destination)
	setOptionalAttr(el, "Consent", r.consent)

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
	status, err := r.status.Element(opts)
	if err != nil {
		return nil, err
	}
	el.AddChild(status)
	for _, a := range r.assertions {
		child, err := a.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
