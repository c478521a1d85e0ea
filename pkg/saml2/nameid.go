package saml2

import "github.com/beevik/etree"

// NameID is the saml:NameID element identifying a subject.
type NameID struct {
	mutability
	value           string
	format          string
	nameQualifier   string
	spNameQualifier string
	spProvidedID    string
}

// NewNameID creates an empty mutable NameID.
func NewNameID() *NameID {
	return &NameID{}
}

// ParseNameID builds a frozen NameID from an XML element.
func ParseNameID(el *etree.Element) (*NameID, error) {
	return parseNameIDTag(el, "NameID")
}

// parseNameIDTag parses any NameIDType element (NameID, Issuer share the type).
func parseNameIDTag(el *etree.Element, tag string) (*NameID, error) {
	if err := checkTag(el, tag); err != nil {
		return nil, err
	}
	if _, err := orderedChildren(el, tag, nil); err != nil {
		return nil, err
	}
	n := &NameID{
		value:           el.Text(),
		format:          el.SelectAttrValue("Format", ""),
		nameQualifier:   el.SelectAttrValue("NameQualifier", ""),
		spNameQualifier: el.SelectAttrValue("SPNameQualifier", ""),
		spProvidedID:    el.SelectAttrValue("SPProvidedID", ""),
	}
	n.MakeImmutable()
	return n, nil
}

// Value returns the textual identifier.
func (n *NameID) Value() string { return n.value }

// Format returns the NameID format URI.
func (n *NameID) Format() string { return n.format }

// NameQualifier returns the NameQualifier attribute.
func (n *NameID) NameQualifier() string { return n.nameQualifier }

// SPNameQualifier returns the SPNameQualifier attribute.
func (n *NameID) SPNameQualifier() string { return n.spNameQualifier }

// SPProvidedID returns the SPProvidedID attribute.
func (n *NameID) SPProvidedID() string { return n.spProvidedID }

// SetValue sets the textual identifier.
func (n *NameID) SetValue(v string) error {
	if err := n.check(); err != nil {
		return err
	}
	n.value = v
	return nil
}

// SetFormat sets the NameID format URI.
func (n *NameID) SetFormat(v string) error {
	if err := n.check(); err != nil {
		return err
	}
	n.format = v
	return nil
}

// SetNameQualifier sets the NameQualifier attribute.
func (n *NameID) SetNameQualifier(v string) error {
	if err := n.check(); err != nil {
		return err
	}
	n.nameQualifier = v
	return nil
}

// SetSPNameQualifier sets the SPNameQualifier attribute.
func (n *NameID) SetSPNameQualifier(v string) error {
	if err := n.check(); err != nil {
		return err
	}
	n.spNameQualifier = v
	return nil
}

// SetSPProvidedID sets the SPProvidedID attribute.
func (n *NameID) SetSPProvidedID(v string) error {
	if err := n.check(); err != nil {
		return err
	}
	n.spProvidedID = v
	return nil
}

// MakeImmutable freezes the NameID.
func (n *NameID) MakeImmutable() {
	n.freeze()
}

// Element renders the NameID.
func (n *NameID) Element(opts SerializeOptions) (*etree.Element, error) {
	return n.element("NameID", opts)
}

func (n *NameID) element(tag string, opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement(tag, opts)
	setOptionalAttr(el, "NameQualifier", n.nameQualifier)
	setOptionalAttr(el, "SPNameQualifier", n.spNameQualifier)
	setOptionalAttr(el, "Format", n.format)
	setOptionalAttr(el, "SPProvidedID", n.spProvidedID)
	el.SetText(n.value)
	return el, nil
}

// Issuer is the saml:Issuer element. It shares NameIDType with NameID.
type Issuer struct {
	NameID
}

// NewIssuer creates an empty mutable Issuer.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// NewIssuerValue creates a mutable Issuer carrying the given entity ID.
func NewIssuerValue(entityID string) *Issuer {
	iss := &Issuer{}
	iss.value = entityID
	return iss
}

// ParseIssuer builds a frozen Issuer from an XML element.
func ParseIssuer(el *etree.Element) (*Issuer, error) {
	n, err := parseNameIDTag(el, "Issuer")
	if err != nil {
		return nil, err
	}
	return &Issuer{NameID: *n}, nil
}

// Element renders the Issuer.
func (i *Issuer) Element(opts SerializeOptions) (*etree.Element, error) {
	return i.element("Issuer", opts)
}

// NameIDPolicy is the samlp:NameIDPolicy element constraining the NameID
// an identity provider may return.
type NameIDPolicy struct {
	mutability
	format          string
	spNameQualifier string
	allowCreate     bool
}

// NewNameIDPolicy creates an empty mutable NameIDPolicy.
func NewNameIDPolicy() *NameIDPolicy {
	return &NameIDPolicy{}
}

// ParseNameIDPolicy builds a frozen NameIDPolicy from an XML element.
func ParseNameIDPolicy(el *etree.Element) (*NameIDPolicy, error) {
	if err := checkTag(el, "NameIDPolicy"); err != nil {
		return nil, err
	}
	if _, err := orderedChildren(el, "NameIDPolicy", nil); err != nil {
		return nil, err
	}
	p := &NameIDPolicy{
		format:          el.SelectAttrValue("Format", ""),
		spNameQualifier: el.SelectAttrValue("SPNameQualifier", ""),
		allowCreate:     el.SelectAttrValue("AllowCreate", "") == "true",
	}
	p.MakeImmutable()
	return p, nil
}

// Format returns the requested NameID format URI.
func (p *NameIDPolicy) Format() string { return p.format }

// SPNameQualifier returns the SPNameQualifier attribute.
func (p *NameIDPolicy) SPNameQualifier() string { return p.spNameQualifier }

// AllowCreate reports whether the IDP may create a new identifier.
func (p *NameIDPolicy) AllowCreate() bool { return p.allowCreate }

// SetFormat sets the requested NameID format URI.
func (p *NameIDPolicy) SetFormat(v string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.format = v
	return nil
}

// SetSPNameQualifier sets the SPNameQualifier attribute.
func (p *NameIDPolicy) SetSPNameQualifier(v string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.spNameQualifier = v
	return nil
}

// SetAllowCreate sets the AllowCreate flag.
func (p *NameIDPolicy) SetAllowCreate(v bool) error {
	if err := p.check(); err != nil {
		return err
	}
	p.allowCreate = v
	return nil
}

// Copy returns a mutable copy of the policy.
func (p *NameIDPolicy) Copy() *NameIDPolicy {
	return &NameIDPolicy{
		format:          p.format,
		spNameQualifier: p.spNameQualifier,
		allowCreate:     p.allowCreate,
	}
}

// MakeImmutable freezes the NameIDPolicy.
func (p *NameIDPolicy) MakeImmutable() {
	p.freeze()
}

// Element renders the NameIDPolicy.
func (p *NameIDPolicy) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("NameIDPolicy", opts)
	setOptionalAttr(el, "Format", p.format)
	setOptionalAttr(el, "SPNameQualifier", p.spNameQualifier)
	if p.allowCreate {
		el.CreateAttr("AllowCreate", "true")
	}
	return el, nil
}
