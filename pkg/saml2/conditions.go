package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// AudienceRestriction is the saml:AudienceRestriction element.
type AudienceRestriction struct {
	mutability
	audiences []string
}

// NewAudienceRestriction creates an empty mutable AudienceRestriction.
func NewAudienceRestriction() *AudienceRestriction {
	return &AudienceRestriction{}
}

// ParseAudienceRestriction builds a frozen AudienceRestriction from an XML
// element.
func ParseAudienceRestriction(el *etree.Element) (*AudienceRestriction, error) {
	if err := checkTag(el, "AudienceRestriction"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "AudienceRestriction", []childSlot{
		{name: "Audience"},
	})
	if err != nil {
		return nil, err
	}
	if len(children["Audience"]) == 0 {
		return nil, parseErr("AudienceRestriction", ErrMissingElement, "Audience")
	}
	r := &AudienceRestriction{}
	for _, c := range children["Audience"] {
		r.audiences = append(r.audiences, c.Text())
	}
	r.MakeImmutable()
	return r, nil
}

// Audiences returns the audience URIs.
func (r *AudienceRestriction) Audiences() []string {
	return append([]string(nil), r.audiences...)
}

// AddAudience appends one audience URI.
func (r *AudienceRestriction) AddAudience(uri string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.audiences = append(r.audiences, uri)
	return nil
}

// MakeImmutable freezes the AudienceRestriction.
func (r *AudienceRestriction) MakeImmutable() {
	r.freeze()
}

// Element renders the AudienceRestriction.
func (r *AudienceRestriction) Element(opts SerializeOptions) (*etree.Element, error) {
	if len(r.audiences) == 0 {
		return nil, parseErr("AudienceRestriction", ErrMissingElement, "Audience")
	}
	el := newAssertionElement("AudienceRestriction", opts)
	for _, a := range r.audiences {
		audience := newAssertionElement("Audience", opts)
		audience.SetText(a)
		el.AddChild(audience)
	}
	return el, nil
}

// Conditions is the saml:Conditions element bounding assertion validity.
type Conditions struct {
	mutability
	notBefore    time.Time
	notOnOrAfter time.Time
	restrictions []*AudienceRestriction
}

// NewConditions creates an empty mutable Conditions.
func NewConditions() *Conditions {
	return &Conditions{}
}

// ParseConditions builds a frozen Conditions from an XML element.
func ParseConditions(el *etree.Element) (*Conditions, error) {
	if err := checkTag(el, "Conditions"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "Conditions", []childSlot{
		{name: "AudienceRestriction"},
	})
	if err != nil {
		return nil, err
	}
	c := &Conditions{}
	if v := el.SelectAttrValue("NotBefore", ""); v != "" {
		if c.notBefore, err = parseTime("Conditions", v); err != nil {
			return nil, err
		}
	}
	if v := el.SelectAttrValue("NotOnOrAfter", ""); v != "" {
		if c.notOnOrAfter, err = parseTime("Conditions", v); err != nil {
			return nil, err
		}
	}
	for _, rc := range children["AudienceRestriction"] {
		r, err := ParseAudienceRestriction(rc)
		if err != nil {
			return nil, err
		}
		c.restrictions = append(c.restrictions, r)
	}
	c.MakeImmutable()
	return c, nil
}

// NotBefore returns the NotBefore instant (zero when unset).
func (c *Conditions) NotBefore() time.Time { return c.notBefore }

// NotOnOrAfter returns the NotOnOrAfter instant (zero when unset).
func (c *Conditions) NotOnOrAfter() time.Time { return c.notOnOrAfter }

// AudienceRestrictions returns the audience restrictions.
func (c *Conditions) AudienceRestrictions() []*AudienceRestriction {
	return append([]*AudienceRestriction(nil), c.restrictions...)
}

// Valid reports whether now falls inside the validity window.
func (c *Conditions) Valid(now time.Time) bool {
	if !c.notBefore.IsZero() && now.Before(c.notBefore) {
		return false
	}
	if !c.notOnOrAfter.IsZero() && !now.Before(c.notOnOrAfter) {
		return false
	}
	return true
}

// SetNotBefore sets the NotBefore instant.
func (c *Conditions) SetNotBefore(t time.Time) error {
	if err := c.check(); err != nil {
		return err
	}
	c.notBefore = t.UTC()
	return nil
}

// SetNotOnOrAfter sets the NotOnOrAfter instant.
func (c *Conditions) SetNotOnOrAfter(t time.Time) error {
	if err := c.check(); err != nil {
		return err
	}
	c.notOnOrAfter = t.UTC()
	return nil
}

// AddAudienceRestriction appends an AudienceRestriction.
func (c *Conditions) AddAudienceRestriction(r *AudienceRestriction) error {
	if err := c.check(); err != nil {
		return err
	}
	c.restrictions = append(c.restrictions, r)
	return nil
}

// MakeImmutable freezes the Conditions and its restrictions.
func (c *Conditions) MakeImmutable() {
	for _, r := range c.restrictions {
		r.MakeImmutable()
	}
	c.freeze()
}

// Element renders the Conditions.
func (c *Conditions) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement("Conditions", opts)
	if !c.notBefore.IsZero() {
		el.CreateAttr("NotBefore", formatTime(c.notBefore))
	}
	if !c.notOnOrAfter.IsZero() {
		el.CreateAttr("NotOnOrAfter", formatTime(c.notOnOrAfter))
	}
	for _, r := range c.restrictions {
		child, err := r.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
