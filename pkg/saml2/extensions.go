package saml2

import "github.com/beevik/etree"

// Extensions is the samlp:Extensions element: an opaque container for
// agreed-upon protocol extensions. Children are carried verbatim.
type Extensions struct {
	mutability
	any []*etree.Element
}

// NewExtensions creates an empty mutable Extensions.
func NewExtensions() *Extensions {
	return &Extensions{}
}

// ParseExtensions builds a frozen Extensions from an XML element.
func ParseExtensions(el *etree.Element) (*Extensions, error) {
	if err := checkTag(el, "Extensions"); err != nil {
		return nil, err
	}
	e := &Extensions{}
	for _, child := range el.ChildElements() {
		e.any = append(e.any, child.Copy())
	}
	e.MakeImmutable()
	return e, nil
}

// Children returns copies of the carried extension elements.
func (e *Extensions) Children() []*etree.Element {
	out := make([]*etree.Element, len(e.any))
	for i, el := range e.any {
		out[i] = el.Copy()
	}
	return out
}

// AddChild appends an extension element.
func (e *Extensions) AddChild(el *etree.Element) error {
	if err := e.check(); err != nil {
		return err
	}
	e.any = append(e.any, el.Copy())
	return nil
}

// Copy returns a mutable deep copy, used when deriving a new request from
// a frozen original.
func (e *Extensions) Copy() *Extensions {
	out := NewExtensions()
	for _, el := range e.any {
		out.any = append(out.any, el.Copy())
	}
	return out
}

// MakeImmutable freezes the Extensions.
func (e *Extensions) MakeImmutable() {
	e.freeze()
}

// Element renders the Extensions.
func (e *Extensions) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("Extensions", opts)
	for _, child := range e.any {
		el.AddChild(child.Copy())
	}
	return el, nil
}
