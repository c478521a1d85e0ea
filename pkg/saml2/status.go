package saml2

import "github.com/beevik/etree"

// StatusCode is the samlp:StatusCode element. A code may nest one
// subordinate code qualifying the top-level value.
type StatusCode struct {
	mutability
	value string
	sub   *StatusCode
}

// NewStatusCode creates an empty mutable StatusCode.
func NewStatusCode() *StatusCode {
	return &StatusCode{}
}

// ParseStatusCode builds a frozen StatusCode from an XML element.
func ParseStatusCode(el *etree.Element) (*StatusCode, error) {
	if err := checkTag(el, "StatusCode"); err != nil {
		return nil, err
	}
	value, err := requiredAttr(el, "StatusCode", "Value")
	if err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "StatusCode", []childSlot{
		{name: "StatusCode", max: 1},
	})
	if err != nil {
		return nil, err
	}
	c := &StatusCode{value: value}
	if subs := children["StatusCode"]; len(subs) == 1 {
		sub, err := ParseStatusCode(subs[0])
		if err != nil {
			return nil, err
		}
		c.sub = sub
	}
	c.MakeImmutable()
	return c, nil
}

// Value returns the status code URI.
func (c *StatusCode) Value() string { return c.value }

// SubCode returns the nested subordinate code, if any.
func (c *StatusCode) SubCode() *StatusCode { return c.sub }

// SetValue sets the status code URI.
func (c *StatusCode) SetValue(v string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.value = v
	return nil
}

// SetSubCode attaches a subordinate code.
func (c *StatusCode) SetSubCode(sub *StatusCode) error {
	if err := c.check(); err != nil {
		return err
	}
	c.sub = sub
	return nil
}

// MakeImmutable freezes the code and its subordinate code.
func (c *StatusCode) MakeImmutable() {
	if c.sub != nil {
		c.sub.MakeImmutable()
	}
	c.freeze()
}

// Element renders the StatusCode.
func (c *StatusCode) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("StatusCode", opts)
	el.CreateAttr("Value", c.value)
	if c.sub != nil {
		sub, err := c.sub.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(sub)
	}
	return el, nil
}

// StatusMessage is the samlp:StatusMessage element carrying a human-readable
// status description.
type StatusMessage struct {
	mutability
	value string
}

// NewStatusMessage creates a mutable StatusMessage with the given text.
func NewStatusMessage(value string) *StatusMessage {
	return &StatusMessage{value: value}
}

// ParseStatusMessage builds a frozen StatusMessage from an XML element.
func ParseStatusMessage(el *etree.Element) (*StatusMessage, error) {
	if err := checkTag(el, "StatusMessage"); err != nil {
		return nil, err
	}
	if _, err := orderedChildren(el, "StatusMessage", nil); err != nil {
		return nil, err
	}
	m := &StatusMessage{value: el.Text()}
	m.MakeImmutable()
	return m, nil
}

// Value returns the message text.
func (m *StatusMessage) Value() string { return m.value }

// SetValue sets the message text.
func (m *StatusMessage) SetValue(v string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.value = v
	return nil
}

// MakeImmutable freezes the StatusMessage.
func (m *StatusMessage) MakeImmutable() {
	m.freeze()
}

// Element renders the StatusMessage.
func (m *StatusMessage) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("StatusMessage", opts)
	el.SetText(m.value)
	return el, nil
}

// StatusDetail is the samlp:StatusDetail element carrying arbitrary
// additional status information.
type StatusDetail struct {
	mutability
	any []*etree.Element
}

// NewStatusDetail creates an empty mutable StatusDetail.
func NewStatusDetail() *StatusDetail {
	return &StatusDetail{}
}

// ParseStatusDetail builds a frozen StatusDetail from an XML element.
func ParseStatusDetail(el *etree.Element) (*StatusDetail, error) {
	if err := checkTag(el, "StatusDetail"); err != nil {
		return nil, err
	}
	d := &StatusDetail{}
	for _, child := range el.ChildElements() {
		d.any = append(d.any, child.Copy())
	}
	d.MakeImmutable()
	return d, nil
}

// Children returns copies of the carried elements.
func (d *StatusDetail) Children() []*etree.Element {
	out := make([]*etree.Element, len(d.any))
	for i, el := range d.any {
		out[i] = el.Copy()
	}
	return out
}

// AddChild appends an arbitrary detail element.
func (d *StatusDetail) AddChild(el *etree.Element) error {
	if err := d.check(); err != nil {
		return err
	}
	d.any = append(d.any, el.Copy())
	return nil
}

// MakeImmutable freezes the StatusDetail.
func (d *StatusDetail) MakeImmutable() {
	d.freeze()
}

// Element renders the StatusDetail.
func (d *StatusDetail) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("StatusDetail", opts)
	for _, child := range d.any {
		el.AddChild(child.Copy())
	}
	return el, nil
}

// Status is the samlp:Status element. Schema order: StatusCode (required),
// StatusMessage, StatusDetail.
type Status struct {
	mutability
	code    *StatusCode
	message *StatusMessage
	detail  *StatusDetail
}

// NewStatus creates an empty mutable Status.
func NewStatus() *Status {
	return &Status{}
}

// NewSuccessStatus creates a mutable Status carrying the Success code.
func NewSuccessStatus() *Status {
	code := NewStatusCode()
	_ = code.SetValue(StatusSuccess)
	return &Status{code: code}
}

// ParseStatus builds a frozen Status from an XML element.
func ParseStatus(el *etree.Element) (*Status, error) {
	if err := checkTag(el, "Status"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "Status", []childSlot{
		{name: "StatusCode", max: 1},
		{name: "StatusMessage", max: 1},
		{name: "StatusDetail", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["StatusCode"]) == 0 {
		return nil, parseErr("Status", ErrMissingElement, "StatusCode")
	}

	s := &Status{}
	if s.code, err = ParseStatusCode(children["StatusCode"][0]); err != nil {
		return nil, err
	}
	if msgs := children["StatusMessage"]; len(msgs) == 1 {
		if s.message, err = ParseStatusMessage(msgs[0]); err != nil {
			return nil, err
		}
	}
	if details := children["StatusDetail"]; len(details) == 1 {
		if s.detail, err = ParseStatusDetail(details[0]); err != nil {
			return nil, err
		}
	}
	s.MakeImmutable()
	return s, nil
}

// Code returns the StatusCode.
func (s *Status) Code() *StatusCode { return s.code }

// Message returns the StatusMessage, if any.
func (s *Status) Message() *StatusMessage { return s.message }

// Detail returns the StatusDetail, if any.
func (s *Status) Detail() *StatusDetail { return s.detail }

// IsSuccess reports whether the top-level code is the Success URI.
func (s *Status) IsSuccess() bool {
	return s.code != nil && s.code.Value() == StatusSuccess
}

// SetCode attaches the StatusCode.
func (s *Status) SetCode(c *StatusCode) error {
	if err := s.check(); err != nil {
		return err
	}
	s.code = c
	return nil
}

// SetMessage attaches a StatusMessage.
func (s *Status) SetMessage(m *StatusMessage) error {
	if err := s.check(); err != nil {
		return err
	}
	s.message = m
	return nil
}

// SetDetail attaches a StatusDetail.
func (s *Status) SetDetail(d *StatusDetail) error {
	if err := s.check(); err != nil {
		return err
	}
	s.detail = d
	return nil
}

// MakeImmutable freezes the Status and all children.
func (s *Status) MakeImmutable() {
	if s.code != nil {
		s.code.MakeImmutable()
	}
	if s.message != nil {
		s.message.MakeImmutable()
	}
	if s.detail != nil {
		s.detail.MakeImmutable()
	}
	s.freeze()
}

// Element renders the Status.
func (s *Status) Element(opts SerializeOptions) (*etree.Element, error) {
	if s.code == nil {
		return nil, parseErr("Status", ErrMissingElement, "StatusCode")
	}
	el := newProtocolElement("Status", opts)
	code, err := s.code.Element(opts)
	if err != nil {
		return nil, err
	}
	el.AddChild(code)
	if s.message != nil {
		msg, err := s.message.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(msg)
	}
	if s.detail != nil {
		detail, err := s.detail.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(detail)
	}
	return el, nil
}
