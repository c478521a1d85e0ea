package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// SubjectConfirmationMethodBearer is the bearer confirmation method URI.
const SubjectConfirmationMethodBearer = "urn:oasis:names:tc:SAML:2.0:cm:bearer"

// SubjectConfirmationData is the saml:SubjectConfirmationData element.
type SubjectConfirmationData struct {
	mutability
	notBefore    time.Time
	notOnOrAfter time.Time
	recipient    string
	inResponseTo string
	address      string
}

// NewSubjectConfirmationData creates an empty mutable
// SubjectConfirmationData.
func NewSubjectConfirmationData() *SubjectConfirmationData {
	return &SubjectConfirmationData{}
}

// ParseSubjectConfirmationData builds a frozen SubjectConfirmationData from
// an XML element.
func ParseSubjectConfirmationData(el *etree.Element) (*SubjectConfirmationData, error) {
	if err := checkTag(el, "SubjectConfirmationData"); err != nil {
		return nil, err
	}
	if _, err := orderedChildren(el, "SubjectConfirmationData", nil); err != nil {
		return nil, err
	}
	d := &SubjectConfirmationData{
		recipient:    el.SelectAttrValue("Recipient", ""),
		inResponseTo: el.SelectAttrValue("InResponseTo", ""),
		address:      el.SelectAttrValue("Address", ""),
	}
	var err error
	if v := el.SelectAttrValue("NotBefore", ""); v != "" {
		if d.notBefore, err = parseTime("SubjectConfirmationData", v); err != nil {
			return nil, err
		}
	}
	if v := el.SelectAttrValue("NotOnOrAfter", ""); v != "" {
		if d.notOnOrAfter, err = parseTime("SubjectConfirmationData", v); err != nil {
			return nil, err
		}
	}
	d.MakeImmutable()
	return d, nil
}

// NotBefore returns the NotBefore instant (zero when unset).
func (d *SubjectConfirmationData) NotBefore() time.Time { return d.notBefore }

// NotOnOrAfter returns the NotOnOrAfter instant (zero when unset).
func (d *SubjectConfirmationData) NotOnOrAfter() time.Time { return d.notOnOrAfter }

// Recipient returns the Recipient attribute.
func (d *SubjectConfirmationData) Recipient() string { return d.recipient }

// InResponseTo returns the InResponseTo attribute.
func (d *SubjectConfirmationData) InResponseTo() string { return d.inResponseTo }

// Address returns the Address attribute.
func (d *SubjectConfirmationData) Address() string { return d.address }

// SetNotBefore sets the NotBefore instant.
func (d *SubjectConfirmationData) SetNotBefore(t time.Time) error {
	if err := d.check(); err != nil {
		return err
	}
	d.notBefore = t.UTC()
	return nil
}

// SetNotOnOrAfter sets the NotOnOrAfter instant.
func (d *SubjectConfirmationData) SetNotOnOrAfter(t time.Time) error {
	if err := d.check(); err != nil {
		return err
	}
	d.notOnOrAfter = t.UTC()
	return nil
}

// SetRecipient sets the Recipient attribute.
func (d *SubjectConfirmationData) SetRecipient(v string) error {
	if err := d.check(); err != nil {
		return err
	}
	d.recipient = v
	return nil
}

// SetInResponseTo sets the InResponseTo attribute.
func (d *SubjectConfirmationData) SetInResponseTo(v string) error {
	if err := d.check(); err != nil {
		return err
	}
	d.inResponseTo = v
	return nil
}

// SetAddress sets the Address attribute.
func (d *SubjectConfirmationData) SetAddress(v string) error {
	if err := d.check(); err != nil {
		return err
	}
	d.address = v
	return nil
}

// MakeImmutable freezes the SubjectConfirmationData.
func (d *SubjectConfirmationData) MakeImmutable() {
	d.freeze()
}

// Element renders the SubjectConfirmationData.
func (d *SubjectConfirmationData) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement("SubjectConfirmationData", opts)
	if !d.notBefore.IsZero() {
		el.CreateAttr("NotBefore", formatTime(d.notBefore))
	}
	if !d.notOnOrAfter.IsZero() {
		el.CreateAttr("NotOnOrAfter", formatTime(d.notOnOrAfter))
	}
	setOptionalAttr(el, "Recipient", d.recipient)
	setOptionalAttr(el, "InResponseTo", d.inResponseTo)
	setOptionalAttr(el, "Address", d.address)
	return el, nil
}

// SubjectConfirmation is the saml:SubjectConfirmation element. Schema
// order: NameID, SubjectConfirmationData.
type SubjectConfirmation struct {
	mutability
	method string
	nameID *NameID
	data   *SubjectConfirmationData
}

// NewSubjectConfirmation creates a mutable SubjectConfirmation with the
// given method URI.
func NewSubjectConfirmation(method string) *SubjectConfirmation {
	return &SubjectConfirmation{method: method}
}

// ParseSubjectConfirmation builds a frozen SubjectConfirmation from an XML
// element.
func ParseSubjectConfirmation(el *etree.Element) (*SubjectConfirmation, error) {
	if err := checkTag(el, "SubjectConfirmation"); err != nil {
		return nil, err
	}
	method, err := requiredAttr(el, "SubjectConfirmation", "Method")
	if err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "SubjectConfirmation", []childSlot{
		{name: "NameID", max: 1},
		{name: "SubjectConfirmationData", max: 1},
	})
	if err != nil {
		return nil, err
	}
	c := &SubjectConfirmation{method: method}
	if ids := children["NameID"]; len(ids) == 1 {
		if c.nameID, err = ParseNameID(ids[0]); err != nil {
			return nil, err
		}
	}
	if data := children["SubjectConfirmationData"]; len(data) == 1 {
		if c.data, err = ParseSubjectConfirmationData(data[0]); err != nil {
			return nil, err
		}
	}
	c.MakeImmutable()
	return c, nil
}

// Method returns the confirmation method URI.
func (c *SubjectConfirmation) Method() string { return c.method }

// NameID returns the confirmed NameID, if any.
func (c *SubjectConfirmation) NameID() *NameID { return c.nameID }

// Data returns the SubjectConfirmationData, if any.
func (c *SubjectConfirmation) Data() *SubjectConfirmationData { return c.data }

// SetMethod sets the confirmation method URI.
func (c *SubjectConfirmation) SetMethod(v string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.method = v
	return nil
}

// SetNameID attaches a NameID.
func (c *SubjectConfirmation) SetNameID(n *NameID) error {
	if err := c.check(); err != nil {
		return err
	}
	c.nameID = n
	return nil
}

// SetData attaches SubjectConfirmationData.
func (c *SubjectConfirmation) SetData(d *SubjectConfirmationData) error {
	if err := c.check(); err != nil {
		return err
	}
	c.data = d
	return nil
}

// MakeImmutable freezes the confirmation and its children.
func (c *SubjectConfirmation) MakeImmutable() {
	if c.nameID != nil {
		c.nameID.MakeImmutable()
	}
	if c.data != nil {
		c.data.MakeImmutable()
	}
	c.freeze()
}

// Element renders the SubjectConfirmation.
func (c *SubjectConfirmation) Element(opts SerializeOptions) (*etree.Element, error) {
	if c.method == "" {
		return nil, parseErr("SubjectConfirmation", ErrMissingAttribute, "Method")
	}
	el := newAssertionElement("SubjectConfirmation", opts)
	el.CreateAttr("Method", c.method)
	if c.nameID != nil {
		child, err := c.nameID.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if c.data != nil {
		child, err := c.data.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}

// Subject is the saml:Subject element. Schema order: NameID,
// SubjectConfirmation*.
type Subject struct {
	mutability
	nameID        *NameID
	confirmations []*SubjectConfirmation
}

// NewSubject creates an empty mutable Subject.
func NewSubject() *Subject {
	return &Subject{}
}

// ParseSubject builds a frozen Subject from an XML element.
func ParseSubject(el *etree.Element) (*Subject, error) {
	if err := checkTag(el, "Subject"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "Subject", []childSlot{
		{name: "NameID", max: 1},
		{name: "SubjectConfirmation"},
	})
	if err != nil {
		return nil, err
	}
	s := &Subject{}
	if ids := children["NameID"]; len(ids) == 1 {
		if s.nameID, err = ParseNameID(ids[0]); err != nil {
			return nil, err
		}
	}
	for _, c := range children["SubjectConfirmation"] {
		conf, err := ParseSubjectConfirmation(c)
		if err != nil {
			return nil, err
		}
		s.confirmations = append(s.confirmations, conf)
	}
	s.MakeImmutable()
	return s, nil
}

// NameID returns the subject NameID, if any.
func (s *Subject) NameID() *NameID { return s.nameID }

// Confirmations returns the subject confirmations.
func (s *Subject) Confirmations() []*SubjectConfirmation {
	return append([]*SubjectConfirmation(nil), s.confirmations...)
}

// SetNameID attaches the subject NameID.
func (s *Subject) SetNameID(n *NameID) error {
	if err := s.check(); err != nil {
		return err
	}
	s.nameID = n
	return nil
}

// AddConfirmation appends a SubjectConfirmation.
func (s *Subject) AddConfirmation(c *SubjectConfirmation) error {
	if err := s.check(); err != nil {
		return err
	}
	s.confirmations = append(s.confirmations, c)
	return nil
}

// MakeImmutable freezes the Subject and its children.
func (s *Subject) MakeImmutable() {
	if s.nameID != nil {
		s.nameID.MakeImmutable()
	}
	for _, c := range s.confirmations {
		c.MakeImmutable()
	}
	s.freeze()
}

// Element renders the Subject.
func (s *Subject) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement("Subject", opts)
	if s.nameID != nil {
		child, err := s.nameID.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	for _, c := range s.confirmations {
		child, err := c.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
