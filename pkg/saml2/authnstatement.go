package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// AuthnContextPasswordProtectedTransport is the most common authentication
// context class.
const AuthnContextPasswordProtectedTransport = "urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport"

// AuthnContext is the saml:AuthnContext element. Only the class reference
// form is modeled.
type AuthnContext struct {
	mutability
	classRef string
}

// NewAuthnContext creates a mutable AuthnContext with the given class
// reference URI.
func NewAuthnContext(classRef string) *AuthnContext {
	return &AuthnContext{classRef: classRef}
}

// ParseAuthnContext builds a frozen AuthnContext from an XML element.
func ParseAuthnContext(el *etree.Element) (*AuthnContext, error) {
	if err := checkTag(el, "AuthnContext"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "AuthnContext", []childSlot{
		{name: "AuthnContextClassRef", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["AuthnContextClassRef"]) == 0 {
		return nil, parseErr("AuthnContext", ErrMissingElement, "AuthnContextClassRef")
	}
	c := &AuthnContext{classRef: children["AuthnContextClassRef"][0].Text()}
	c.MakeImmutable()
	return c, nil
}

// ClassRef returns the AuthnContextClassRef URI.
func (c *AuthnContext) ClassRef() string { return c.classRef }

// SetClassRef sets the AuthnContextClassRef URI.
func (c *AuthnContext) SetClassRef(v string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.classRef = v
	return nil
}

// MakeImmutable freezes the AuthnContext.
func (c *AuthnContext) MakeImmutable() {
	c.freeze()
}

// Element renders the AuthnContext.
func (c *AuthnContext) Element(opts SerializeOptions) (*etree.Element, error) {
	if c.classRef == "" {
		return nil, parseErr("AuthnContext", ErrMissingElement, "AuthnContextClassRef")
	}
	el := newAssertionElement("AuthnContext", opts)
	ref := newAssertionElement("AuthnContextClassRef", opts)
	ref.SetText(c.classRef)
	el.AddChild(ref)
	return el, nil
}

// AuthnStatement is the saml:AuthnStatement element describing one
// authentication act.
type AuthnStatement struct {
	mutability
	authnInstant        time.Time
	sessionIndex        string
	sessionNotOnOrAfter time.Time
	context             *AuthnContext
}

// NewAuthnStatement creates an empty mutable AuthnStatement.
func NewAuthnStatement() *AuthnStatement {
	return &AuthnStatement{}
}

// ParseAuthnStatement builds a frozen AuthnStatement from an XML element.
func ParseAuthnStatement(el *etree.Element) (*AuthnStatement, error) {
	if err := checkTag(el, "AuthnStatement"); err != nil {
		return nil, err
	}
	instantValue, err := requiredAttr(el, "AuthnStatement", "AuthnInstant")
	if err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "AuthnStatement", []childSlot{
		{name: "AuthnContext", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["AuthnContext"]) == 0 {
		return nil, parseErr("AuthnStatement", ErrMissingElement, "AuthnContext")
	}

	s := &AuthnStatement{
		sessionIndex: el.SelectAttrValue("SessionIndex", ""),
	}
	if s.authnInstant, err = parseTime("AuthnStatement", instantValue); err != nil {
		return nil, err
	}
	if v := el.SelectAttrValue("SessionNotOnOrAfter", ""); v != "" {
		if s.sessionNotOnOrAfter, err = parseTime("AuthnStatement", v); err != nil {
			return nil, err
		}
	}
	if s.context, err = ParseAuthnContext(children["AuthnContext"][0]); err != nil {
		return nil, err
	}
	s.MakeImmutable()
	return s, nil
}

// AuthnInstant returns the authentication instant.
func (s *AuthnStatement) AuthnInstant() time.Time { return s.authnInstant }

// SessionIndex returns the SessionIndex attribute.
func (s *AuthnStatement) SessionIndex() string { return s.sessionIndex }

// SessionNotOnOrAfter returns the session expiry (zero when unset).
func (s *AuthnStatement) SessionNotOnOrAfter() time.Time { return s.sessionNotOnOrAfter }

// Context returns the AuthnContext.
func (s *AuthnStatement) Context() *AuthnContext { return s.context }

// SetAuthnInstant sets the authentication instant.
func (s *AuthnStatement) SetAuthnInstant(t time.Time) error {
	if err := s.check(); err != nil {
		return err
	}
	s.authnInstant = t.UTC()
	return nil
}

// SetSessionIndex sets the SessionIndex attribute.
func (s *AuthnStatement) SetSessionIndex(v string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.sessionIndex = v
	return nil
}

// SetSessionNotOnOrAfter sets the session expiry.
func (s *AuthnStatement) SetSessionNotOnOrAfter(t time.Time) error {
	if err := s.check(); err != nil {
		return err
	}
	s.sessionNotOnOrAfter = t.UTC()
	return nil
}

// SetContext attaches the AuthnContext.
func (s *AuthnStatement) SetContext(c *AuthnContext) error {
	if err := s.check(); err != nil {
		return err
	}
	s.context = c
	return nil
}

// MakeImmutable freezes the statement and its context.
func (s *AuthnStatement) MakeImmutable() {
	if s.context != nil {
		s.context.MakeImmutable()
	}
	s.freeze()
}

// Element renders the AuthnStatement.
func (s *AuthnStatement) Element(opts SerializeOptions) (*etree.Element, error) {
	if s.authnInstant.IsZero() {
		return nil, parseErr("AuthnStatement", ErrMissingAttribute, "AuthnInstant")
	}
	if s.context == nil {
		return nil, parseErr("AuthnStatement", ErrMissingElement, "AuthnContext")
	}
	el := newAssertionElement("AuthnStatement", opts)
	el.CreateAttr("AuthnInstant", formatTime(s.authnInstant))
	setOptionalAttr(el, "SessionIndex", s.sessionIndex)
	if !s.sessionNotOnOrAfter.IsZero() {
		el.CreateAttr("SessionNotOnOrAfter", formatTime(s.sessionNotOnOrAfter))
	}
	child, err := s.context.Element(opts)
	if err != nil {
		return nil, err
	}
	el.AddChild(child)
	return el, nil
}
