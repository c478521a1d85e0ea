package saml2

import "github.com/beevik/etree"

// Attribute is the saml:Attribute element. Values hold the text content of
// the AttributeValue children in document order.
type Attribute struct {
	mutability
	name         string
	nameFormat   string
	friendlyName string
	values       []string
}

// NewAttribute creates a mutable Attribute with the given name.
func NewAttribute(name string) *Attribute {
	return &Attribute{name: name}
}

// ParseAttribute builds a frozen Attribute from an XML element.
func ParseAttribute(el *etree.Element) (*Attribute, error) {
	if err := checkTag(el, "Attribute"); err != nil {
		return nil, err
	}
	name, err := requiredAttr(el, "Attribute", "Name")
	if err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "Attribute", []childSlot{
		{name: "AttributeValue"},
	})
	if err != nil {
		return nil, err
	}
	a := &Attribute{
		name:         name,
		nameFormat:   el.SelectAttrValue("NameFormat", ""),
		friendlyName: el.SelectAttrValue("FriendlyName", ""),
	}
	for _, v := range children["AttributeValue"] {
		a.values = append(a.values, v.Text())
	}
	a.MakeImmutable()
	return a, nil
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// NameFormat returns the NameFormat attribute.
func (a *Attribute) NameFormat() string { return a.nameFormat }

// FriendlyName returns the FriendlyName attribute.
func (a *Attribute) FriendlyName() string { return a.friendlyName }

// Values returns a copy of the attribute values.
func (a *Attribute) Values() []string {
	return append([]string(nil), a.values...)
}

// SetName sets the attribute name.
func (a *Attribute) SetName(v string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.name = v
	return nil
}

// SetNameFormat sets the NameFormat attribute.
func (a *Attribute) SetNameFormat(v string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.nameFormat = v
	return nil
}

// SetFriendlyName sets the FriendlyName attribute.
func (a *Attribute) SetFriendlyName(v string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.friendlyName = v
	return nil
}

// SetValues replaces the attribute values.
func (a *Attribute) SetValues(values []string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.values = append([]string(nil), values...)
	return nil
}

// AddValue appends one attribute value.
func (a *Attribute) AddValue(v string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.values = append(a.values, v)
	return nil
}

// MakeImmutable freezes the Attribute.
func (a *Attribute) MakeImmutable() {
	a.freeze()
}

// Element renders the Attribute.
func (a *Attribute) Element(opts SerializeOptions) (*etree.Element, error) {
	if a.name == "" {
		return nil, parseErr("Attribute", ErrMissingAttribute, "Name")
	}
	el := newAssertionElement("Attribute", opts)
	el.CreateAttr("Name", a.name)
	setOptionalAttr(el, "NameFormat", a.nameFormat)
	setOptionalAttr(el, "FriendlyName", a.friendlyName)
	for _, v := range a.values {
		value := newAssertionElement("AttributeValue", opts)
		value.SetText(v)
		el.AddChild(value)
	}
	return el, nil
}

// AttributeStatement is the saml:AttributeStatement element: a sequence of
// Attribute and EncryptedAttribute children.
type AttributeStatement struct {
	mutability
	attributes []*Attribute
	encrypted  []*EncryptedAttribute
}

// NewAttributeStatement creates an empty mutable AttributeStatement.
func NewAttributeStatement() *AttributeStatement {
	return &AttributeStatement{}
}

// ParseAttributeStatement builds a frozen AttributeStatement from an XML
// element.
func ParseAttributeStatement(el *etree.Element) (*AttributeStatement, error) {
	if err := checkTag(el, "AttributeStatement"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "AttributeStatement", []childSlot{
		{name: "Attribute"},
		{name: "EncryptedAttribute"},
	})
	if err != nil {
		return nil, err
	}
	s := &AttributeStatement{}
	for _, c := range children["Attribute"] {
		a, err := ParseAttribute(c)
		if err != nil {
			return nil, err
		}
		s.attributes = append(s.attributes, a)
	}
	for _, c := range children["EncryptedAttribute"] {
		ea, err := ParseEncryptedAttribute(c)
		if err != nil {
			return nil, err
		}
		s.encrypted = append(s.encrypted, ea)
	}
	s.MakeImmutable()
	return s, nil
}

// Attributes returns the plaintext attributes.
func (s *AttributeStatement) Attributes() []*Attribute {
	return append([]*Attribute(nil), s.attributes...)
}

// EncryptedAttributes returns the encrypted attributes.
func (s *AttributeStatement) EncryptedAttributes() []*EncryptedAttribute {
	return append([]*EncryptedAttribute(nil), s.encrypted...)
}

// AddAttribute appends a plaintext attribute. Attaching an already-frozen
// child to a mutable parent is allowed.
func (s *AttributeStatement) AddAttribute(a *Attribute) error {
	if err := s.check(); err != nil {
		return err
	}
	s.attributes = append(s.attributes, a)
	return nil
}

// AddEncryptedAttribute appends an encrypted attribute.
func (s *AttributeStatement) AddEncryptedAttribute(ea *EncryptedAttribute) error {
	if err := s.check(); err != nil {
		return err
	}
	s.encrypted = append(s.encrypted, ea)
	return nil
}

// MakeImmutable freezes the statement and all children.
func (s *AttributeStatement) MakeImmutable() {
	for _, a := range s.attributes {
		a.MakeImmutable()
	}
	for _, ea := range s.encrypted {
		ea.MakeImmutable()
	}
	s.freeze()
}

// Element renders the AttributeStatement.
func (s *AttributeStatement) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement("AttributeStatement", opts)
	for _, a := range s.attributes {
		child, err := a.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	for _, ea := range s.encrypted {
		child, err := ea.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
