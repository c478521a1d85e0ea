package saml2

import (
	"errors"
	"fmt"
)

// ErrImmutable is returned by every mutator invoked after MakeImmutable.
// It indicates a caller bug, not a runtime condition to recover from.
var ErrImmutable = errors.New("saml2: object is immutable")

// Parse-error kinds. Every parse failure wraps exactly one of these so
// callers can branch on the violation class.
var (
	// ErrWrongElement is returned when the element's local name does not
	// match the expected tag.
	ErrWrongElement = errors.New("saml2: wrong element")

	// ErrUnexpectedElement is returned when a child element name is not
	// part of the parent's schema.
	ErrUnexpectedElement = errors.New("saml2: unexpected element")

	// ErrDuplicateElement is returned when a child element is repeated
	// beyond its declared cardinality.
	ErrDuplicateElement = errors.New("saml2: element repeated beyond cardinality")

	// ErrElementOutOfOrder is returned when a child element appears after
	// an element that the schema places later in the sequence.
	ErrElementOutOfOrder = errors.New("saml2: element out of schema order")

	// ErrMissingElement is returned when a required child element is absent.
	ErrMissingElement = errors.New("saml2: required element missing")

	// ErrMissingAttribute is returned when a required XML attribute is absent.
	ErrMissingAttribute = errors.New("saml2: required attribute missing")

	// ErrBadValue is returned when an attribute or text value cannot be
	// interpreted (bad timestamp, bad integer, bad base64).
	ErrBadValue = errors.New("saml2: malformed value")

	// ErrMalformedXML is returned when the input is not well-formed XML or
	// fails round-trip validation.
	ErrMalformedXML = errors.New("saml2: malformed XML")
)

// ParseError describes a schema violation found while parsing a protocol
// object. Err is one of the sentinel parse-error kinds above.
type ParseError struct {
	Element string // local name of the object being parsed
	Err     error  // sentinel kind
	Detail  string // offending child/attribute name or value
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Element, e.Err, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(element string, kind error, detail string) error {
	return &ParseError{Element: element, Err: kind, Detail: detail}
}
