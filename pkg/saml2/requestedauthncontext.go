package saml2

import "github.com/beevik/etree"

// RequestedAuthnContext is the samlp:RequestedAuthnContext element
// expressing the authentication context a requester demands.
type RequestedAuthnContext struct {
	mutability
	comparison string
	classRefs  []string
}

// NewRequestedAuthnContext creates an empty mutable RequestedAuthnContext.
func NewRequestedAuthnContext() *RequestedAuthnContext {
	return &RequestedAuthnContext{}
}

// ParseRequestedAuthnContext builds a frozen RequestedAuthnContext from an
// XML element.
func ParseRequestedAuthnContext(el *etree.Element) (*RequestedAuthnContext, error) {
	if err := checkTag(el, "RequestedAuthnContext"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "RequestedAuthnContext", []childSlot{
		{name: "AuthnContextClassRef"},
	})
	if err != nil {
		return nil, err
	}
	if len(children["AuthnContextClassRef"]) == 0 {
		return nil, parseErr("RequestedAuthnContext", ErrMissingElement, "AuthnContextClassRef")
	}
	r := &RequestedAuthnContext{
		comparison: el.SelectAttrValue("Comparison", ""),
	}
	for _, c := range children["AuthnContextClassRef"] {
		r.classRefs = append(r.classRefs, c.Text())
	}
	r.MakeImmutable()
	return r, nil
}

// Comparison returns the Comparison attribute (exact, minimum, maximum,
// better), empty when unset.
func (r *RequestedAuthnContext) Comparison() string { return r.comparison }

// ClassRefs returns the requested AuthnContextClassRef URIs.
func (r *RequestedAuthnContext) ClassRefs() []string {
	return append([]string(nil), r.classRefs...)
}

// SetComparison sets the Comparison attribute.
func (r *RequestedAuthnContext) SetComparison(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.comparison = v
	return nil
}

// AddClassRef appends one AuthnContextClassRef URI.
func (r *RequestedAuthnContext) AddClassRef(uri string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.classRefs = append(r.classRefs, uri)
	return nil
}

// MakeImmutable freezes the RequestedAuthnContext.
func (r *RequestedAuthnContext) MakeImmutable() {
	r.freeze()
}

// Element renders the RequestedAuthnContext.
func (r *RequestedAuthnContext) Element(opts SerializeOptions) (*etree.Element, error) {
	if len(r.classRefs) == 0 {
		return nil, parseErr("RequestedAuthnContext", ErrMissingElement, "AuthnContextClassRef")
	}
	el := newProtocolElement("RequestedAuthnContext", opts)
	setOptionalAttr(el, "Comparison", r.comparison)
	for _, ref := range r.classRefs {
		// AuthnContextClassRef lives in the assertion namespace
		c := newAssertionElement("AuthnContextClassRef", opts)
		c.SetText(ref)
		el.AddChild(c)
	}
	return el, nil
}
