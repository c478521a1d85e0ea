package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// Assertion is the saml:Assertion element. Schema order: Issuer, Signature,
// Subject, Conditions, AuthnStatement*, AttributeStatement*.
type Assertion struct {
	mutability
	id           string
	issueInstant time.Time
	issuer       *Issuer
	signature    *etree.Element
	subject      *Subject
	conditions   *Conditions
	authnStmts   []*AuthnStatement
	attrStmts    []*AttributeStatement
}

// NewAssertion creates a mutable Assertion with a fresh ID and the current
// issue instant.
func NewAssertion() *Assertion {
	return &Assertion{id: NewID(), issueInstant: time.Now().UTC()}
}

// ParseAssertion builds a frozen Assertion from an XML element.
func ParseAssertion(el *etree.Element) (*Assertion, error) {
	if err := checkTag(el, "Assertion"); err != nil {
		return nil, err
	}
	id, err := requiredAttr(el, "Assertion", "ID")
	if err != nil {
		return nil, err
	}
	version, err := requiredAttr(el, "Assertion", "Version")
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, parseErr("Assertion", ErrBadValue, "Version "+version)
	}
	instantValue, err := requiredAttr(el, "Assertion", "IssueInstant")
	if err != nil {
		return nil, err
	}

	children, err := orderedChildren(el, "Assertion", []childSlot{
		{name: "Issuer", max: 1},
		{name: "Signature", max: 1},
		{name: "Subject", max: 1},
		{name: "Conditions", max: 1},
		{name: "AuthnStatement"},
		{name: "AttributeStatement"},
	})
	if err != nil {
		return nil, err
	}
	if len(children["Issuer"]) == 0 {
		return nil, parseErr("Assertion", ErrMissingElement, "Issuer")
	}

	a := &Assertion{id: id}
	if a.issueInstant, err = parseTime("Assertion", instantValue); err != nil {
		return nil, err
	}
	if a.issuer, err = ParseIssuer(children["Issuer"][0]); err != nil {
		return nil, err
	}
	if sigs := children["Signature"]; len(sigs) == 1 {
		a.signature = sigs[0].Copy()
	}
	if subjects := children["Subject"]; len(subjects) == 1 {
		if a.subject, err = ParseSubject(subjects[0]); err != nil {
			return nil, err
		}
	}
	if conds := children["Conditions"]; len(conds) == 1 {
		if a.conditions, err = ParseConditions(conds[0]); err != nil {
			return nil, err
		}
	}
	for _, c := range children["AuthnStatement"] {
		stmt, err := ParseAuthnStatement(c)
		if err != nil {
			return nil, err
		}
		a.authnStmts = append(a.authnStmts, stmt)
	}
	for _, c := range children["AttributeStatement"] {
		stmt, err := ParseAttributeStatement(c)
		if err != nil {
			return nil, err
		}
		a.attrStmts = append(a.attrStmts, stmt)
	}
	a.MakeImmutable()
	return a, nil
}

// ID returns the assertion identifier.
func (a *Assertion) ID() string { return a.id }

// IssueInstant returns the issue instant.
func (a *Assertion) IssueInstant() time.Time { return a.issueInstant }

// Issuer returns the Issuer.
func (a *Assertion) Issuer() *Issuer { return a.issuer }

// Signature returns a copy of the enveloped signature element, if any.
func (a *Assertion) Signature() *etree.Element {
	if a.signature == nil {
		return nil
	}
	return a.signature.Copy()
}

// Subject returns the Subject, if any.
func (a *Assertion) Subject() *Subject { return a.subject }

// Conditions returns the Conditions, if any.
func (a *Assertion) Conditions() *Conditions { return a.conditions }

// AuthnStatements returns the authentication statements.
func (a *Assertion) AuthnStatements() []*AuthnStatement {
	return append([]*AuthnStatement(nil), a.authnStmts...)
}

// AttributeStatements returns the attribute statements.
func (a *Assertion) AttributeStatements() []*AttributeStatement {
	return append([]*AttributeStatement(nil), a.attrStmts...)
}

// SetID sets the assertion identifier.
func (a *Assertion) SetID(v string) error {
	if err := a.check(); err != nil {
		return err
	}
	a.id = v
	return nil
}

// SetIssueInstant sets the issue instant.
func (a *Assertion) SetIssueInstant(t time.Time) error {
	if err := a.check(); err != nil {
		return err
	}
	a.issueInstant = t.UTC()
	return nil
}

// SetIssuer attaches the Issuer.
func (a *Assertion) SetIssuer(i *Issuer) error {
	if err := a.check(); err != nil {
		return err
	}
	a.issuer = i
	return nil
}

// SetSignature attaches an enveloped signature element.
func (a *Assertion) SetSignature(el *etree.Element) error {
	if err := a.check(); err != nil {
		return err
	}
	a.signature = el.Copy()
	return nil
}

// SetSubject attaches the Subject.
func (a *Assertion) SetSubject(s *Subject) error {
	if err := a.check(); err != nil {
		return err
	}
	a.subject = s
	return nil
}

// SetConditions attaches the Conditions.
func (a *Assertion) SetConditions(c *Conditions) error {
	if err := a.check(); err != nil {
		return err
	}
	a.conditions = c
	return nil
}

// AddAuthnStatement appends an AuthnStatement.
func (a *Assertion) AddAuthnStatement(s *AuthnStatement) error {
	if err := a.check(); err != nil {
		return err
	}
	a.authnStmts = append(a.authnStmts, s)
	return nil
}

// AddAttributeStatement appends an AttributeStatement.
func (a *Assertion) AddAttributeStatement(s *AttributeStatement) error {
	if err := a.check(); err != nil {
		return err
	}
	a.attrStmts = append(a.attrStmts, s)
	return nil
}

// MakeImmutable freezes the assertion and all children.
func (a *Assertion) MakeImmutable() {
	if a.issuer != nil {
		a.issuer.MakeImmutable()
	}
	if a.subject != nil {
		a.subject.MakeImmutable()
	}
	if a.conditions != nil {
		a.conditions.MakeImmutable()
	}
	for _, s := range a.authnStmts {
		s.MakeImmutable()
	}
	for _, s := range a.attrStmts {
		s.MakeImmutable()
	}
	a.freeze()
}

// Element renders the Assertion.
func (a *Assertion) Element(opts SerializeOptions) (*etree.Element, error) {
	if a.issuer == nil {
		return nil, parseErr("Assertion", ErrMissingElement, "Issuer")
	}
	el := newAssertionElement("Assertion", opts)
	el.CreateAttr("ID", a.id)
	el.CreateAttr("Version", ProtocolVersion)
	el.CreateAttr("IssueInstant", formatTime(a.issueInstant))

	issuer, err := a.issuer.Element(opts)
	if err != nil {
		return nil, err
	}
	el.AddChild(issuer)
	if a.signature != nil {
		el.AddChild(a.signature.Copy())
	}
	if a.subject != nil {
		child, err := a.subject.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if a.conditions != nil {
		child, err := a.conditions.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	for _, s := range a.authnStmts {
		child, err := s.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	for _, s := range a.attrStmts {
		child, err := s.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	return el, nil
}
