package saml2

import (
	"strconv"

	"github.com/beevik/etree"
)

// IDPEntry is the samlp:IDPEntry element naming one identity provider
// inside an IDPList.
type IDPEntry struct {
	mutability
	providerID string
	name       string
	loc        string
}

// NewIDPEntry creates a mutable IDPEntry for the given provider entity ID.
func NewIDPEntry(providerID string) *IDPEntry {
	return &IDPEntry{providerID: providerID}
}

// ParseIDPEntry builds a frozen IDPEntry from an XML element.
func ParseIDPEntry(el *etree.Element) (*IDPEntry, error) {
	if err := checkTag(el, "IDPEntry"); err != nil {
		return nil, err
	}
	providerID, err := requiredAttr(el, "IDPEntry", "ProviderID")
	if err != nil {
		return nil, err
	}
	if _, err := orderedChildren(el, "IDPEntry", nil); err != nil {
		return nil, err
	}
	e := &IDPEntry{
		providerID: providerID,
		name:       el.SelectAttrValue("Name", ""),
		loc:        el.SelectAttrValue("Loc", ""),
	}
	e.MakeImmutable()
	return e, nil
}

// ProviderID returns the entity ID of the provider.
func (e *IDPEntry) ProviderID() string { return e.providerID }

// Name returns the human-readable provider name.
func (e *IDPEntry) Name() string { return e.name }

// Loc returns the provider's endpoint location hint.
func (e *IDPEntry) Loc() string { return e.loc }

// SetProviderID sets the provider entity ID.
func (e *IDPEntry) SetProviderID(v string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.providerID = v
	return nil
}

// SetName sets the provider name.
func (e *IDPEntry) SetName(v string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.name = v
	return nil
}

// SetLoc sets the endpoint location hint.
func (e *IDPEntry) SetLoc(v string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.loc = v
	return nil
}

// MakeImmutable freezes the IDPEntry.
func (e *IDPEntry) MakeImmutable() {
	e.freeze()
}

// Element renders the IDPEntry.
func (e *IDPEntry) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("IDPEntry", opts)
	el.CreateAttr("ProviderID", e.providerID)
	setOptionalAttr(el, "Name", e.name)
	setOptionalAttr(el, "Loc", e.loc)
	return el, nil
}

// IDPList is the samlp:IDPList element: one or more IDPEntry children
// followed by an optional GetComplete URI.
type IDPList struct {
	mutability
	entries     []*IDPEntry
	getComplete string
}

// NewIDPList creates an empty mutable IDPList.
func NewIDPList() *IDPList {
	return &IDPList{}
}

// ParseIDPList builds a frozen IDPList from an XML element.
func ParseIDPList(el *etree.Element) (*IDPList, error) {
	if err := checkTag(el, "IDPList"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "IDPList", []childSlot{
		{name: "IDPEntry"},
		{name: "GetComplete", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["IDPEntry"]) == 0 {
		return nil, parseErr("IDPList", ErrMissingElement, "IDPEntry")
	}
	l := &IDPList{}
	for _, c := range children["IDPEntry"] {
		entry, err := ParseIDPEntry(c)
		if err != nil {
			return nil, err
		}
		l.entries = append(l.entries, entry)
	}
	if gc := children["GetComplete"]; len(gc) == 1 {
		l.getComplete = gc[0].Text()
	}
	l.MakeImmutable()
	return l, nil
}

// Entries returns the provider entries.
func (l *IDPList) Entries() []*IDPEntry {
	return append([]*IDPEntry(nil), l.entries...)
}

// GetComplete returns the GetComplete URI, if any.
func (l *IDPList) GetComplete() string { return l.getComplete }

// AddEntry appends a provider entry.
func (l *IDPList) AddEntry(e *IDPEntry) error {
	if err := l.check(); err != nil {
		return err
	}
	l.entries = append(l.entries, e)
	return nil
}

// SetGetComplete sets the GetComplete URI.
func (l *IDPList) SetGetComplete(v string) error {
	if err := l.check(); err != nil {
		return err
	}
	l.getComplete = v
	return nil
}

// MakeImmutable freezes the list and its entries.
func (l *IDPList) MakeImmutable() {
	for _, e := range l.entries {
		e.MakeImmutable()
	}
	l.freeze()
}

// Element renders the IDPList.
func (l *IDPList) Element(opts SerializeOptions) (*etree.Element, error) {
	if len(l.entries) == 0 {
		return nil, parseErr("IDPList", ErrMissingElement, "IDPEntry")
	}
	el := newProtocolElement("IDPList", opts)
	for _, e := range l.entries {
		child, err := e.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if l.getComplete != "" {
		gc := newProtocolElement("GetComplete", opts)
		gc.SetText(l.getComplete)
		el.AddChild(gc)
	}
	return el, nil
}

// Scoping is the samlp:Scoping element restricting how a request may be
// proxied. RequesterIDs records the chain of requesters the request has
// passed through, oldest first.
type Scoping struct {
	mutability
	proxyCount   *int
	idpList      *IDPList
	requesterIDs []string
}

// NewScoping creates an empty mutable Scoping.
func NewScoping() *Scoping {
	return &Scoping{}
}

// ParseScoping builds a frozen Scoping from an XML element.
func ParseScoping(el *etree.Element) (*Scoping, error) {
	if err := checkTag(el, "Scoping"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "Scoping", []childSlot{
		{name: "IDPList", max: 1},
		{name: "RequesterID"},
	})
	if err != nil {
		return nil, err
	}
	s := &Scoping{}
	if v := el.SelectAttrValue("ProxyCount", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, parseErr("Scoping", ErrBadValue, "ProxyCount "+v)
		}
		s.proxyCount = &n
	}
	if lists := children["IDPList"]; len(lists) == 1 {
		list, err := ParseIDPList(lists[0])
		if err != nil {
			return nil, err
		}
		s.idpList = list
	}
	for _, c := range children["RequesterID"] {
		s.requesterIDs = append(s.requesterIDs, c.Text())
	}
	s.MakeImmutable()
	return s, nil
}

// ProxyCount returns the remaining proxy hop count, or -1 when unset.
func (s *Scoping) ProxyCount() int {
	if s.proxyCount == nil {
		return -1
	}
	return *s.proxyCount
}

// HasProxyCount reports whether ProxyCount was present.
func (s *Scoping) HasProxyCount() bool { return s.proxyCount != nil }

// IDPList returns the IDPList, if any.
func (s *Scoping) IDPList() *IDPList { return s.idpList }

// RequesterIDs returns the requester chain, oldest first.
func (s *Scoping) RequesterIDs() []string {
	return append([]string(nil), s.requesterIDs...)
}

// SetProxyCount sets the remaining proxy hop count.
func (s *Scoping) SetProxyCount(n int) error {
	if err := s.check(); err != nil {
		return err
	}
	if n < 0 {
		return parseErr("Scoping", ErrBadValue, "negative ProxyCount")
	}
	s.proxyCount = &n
	return nil
}

// SetIDPList attaches an IDPList.
func (s *Scoping) SetIDPList(l *IDPList) error {
	if err := s.check(); err != nil {
		return err
	}
	s.idpList = l
	return nil
}

// AddRequesterID appends one requester entity ID to the chain.
func (s *Scoping) AddRequesterID(id string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.requesterIDs = append(s.requesterIDs, id)
	return nil
}

// SetRequesterIDs replaces the requester chain.
func (s *Scoping) SetRequesterIDs(ids []string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.requesterIDs = append([]string(nil), ids...)
	return nil
}

// MakeImmutable freezes the Scoping and its IDPList.
func (s *Scoping) MakeImmutable() {
	if s.idpList != nil {
		s.idpList.MakeImmutable()
	}
	s.freeze()
}

// Element renders the Scoping.
func (s *Scoping) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newProtocolElement("Scoping", opts)
	if s.proxyCount != nil {
		el.CreateAttr("ProxyCount", strconv.Itoa(*s.proxyCount))
	}
	if s.idpList != nil {
		child, err := s.idpList.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	for _, id := range s.requesterIDs {
		r := newProtocolElement("RequesterID", opts)
		r.SetText(id)
		el.AddChild(r)
	}
	return el, nil
}
