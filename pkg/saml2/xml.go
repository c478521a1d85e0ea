package saml2

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	xrv "github.com/mattermost/xml-roundtrip-validator"
)

// SAML2 namespace URIs and their conventional prefixes.
const (
	AssertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	ProtocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	XMLEncNamespace    = "http://www.w3.org/2001/04/xmlenc#"
	XMLSigNamespace    = "http://www.w3.org/2000/09/xmldsig#"

	assertionPrefix = "saml"
	protocolPrefix  = "samlp"
	xencPrefix      = "xenc"
)

// Well-known status code and format URIs.
const (
	StatusSuccess   = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusRequester = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusResponder = "urn:oasis:names:tc:SAML:2.0:status:Responder"

	NameIDFormatPersistent  = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	NameIDFormatTransient   = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
	NameIDFormatUnspecified = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"

	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"

	// ProtocolVersion is the only protocol version this codec accepts.
	ProtocolVersion = "2.0"
)

// SerializeOptions controls namespace emission during serialization.
type SerializeOptions struct {
	// IncludePrefix qualifies emitted element names with the conventional
	// namespace prefix (saml:/samlp:/xenc:).
	IncludePrefix bool
	// DeclareNamespace emits an xmlns declaration on each element.
	DeclareNamespace bool
}

// Object is the capability set shared by all protocol objects.
type Object interface {
	// Element renders the object as an etree element.
	Element(opts SerializeOptions) (*etree.Element, error)
	// MakeImmutable freezes the object and, recursively, all children
	// attached at freeze time.
	MakeImmutable()
	// Mutable reports whether the object still accepts mutation.
	Mutable() bool
}

// ToXMLString serializes a protocol object to an XML string.
func ToXMLString(o Object, includePrefix, declareNamespace bool) (string, error) {
	el, err := o.Element(SerializeOptions{IncludePrefix: includePrefix, DeclareNamespace: declareNamespace})
	if err != nil {
		return "", err
	}
	doc := etree.NewDocument()
	doc.SetRoot(el)
	return doc.WriteToString()
}

// ParseElement reads an XML string into an etree element after round-trip
// validation. Inbound protocol XML always enters the codec through here.
func ParseElement(xml string) (*etree.Element, error) {
	if err := xrv.Validate(strings.NewReader(xml)); err != nil {
		return nil, parseErr("document", ErrMalformedXML, err.Error())
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, parseErr("document", ErrMalformedXML, err.Error())
	}
	root := doc.Root()
	if root == nil {
		return nil, parseErr("document", ErrMalformedXML, "no root element")
	}
	return root, nil
}

// NewID generates a unique protocol message identifier. SAML IDs are of XML
// type xs:ID and must not start with a digit, hence the underscore prefix.
func NewID() string {
	return "_" + uuid.New().String()
}

// timeFormat is the xs:dateTime layout used for IssueInstant and friends.
const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(element, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, parseErr(element, ErrBadValue, "bad timestamp "+value)
	}
	return t.UTC(), nil
}

// mutability is the freeze flag embedded by every protocol object. Setters
// call check before mutating; MakeImmutable implementations call freeze
// after freezing children.
type mutability struct {
	frozen bool
}

// Mutable reports whether the object still accepts mutation.
func (m *mutability) Mutable() bool {
	return !m.frozen
}

func (m *mutability) freeze() {
	m.frozen = true
}

func (m *mutability) check() error {
	if m.frozen {
		return ErrImmutable
	}
	return nil
}

// childSlot declares one position of an element's fixed schema sequence.
// max == 0 means unbounded. The reserved name "*" matches any element and
// is used for trailing xs:any particles.
type childSlot struct {
	name string
	max  int
}

// orderedChildren walks the child elements of el against the declared
// schema sequence, enforcing order and cardinality. It returns the matched
// children grouped by local name (wildcard matches under "*"). Each
// violation maps to a distinct parse-error kind: an element whose slot was
// already passed is out-of-order, an element over its cardinality is a
// duplicate, and an element with no slot at all is unexpected.
func orderedChildren(el *etree.Element, elementName string, slots []childSlot) (map[string][]*etree.Element, error) {
	out := make(map[string][]*etree.Element)
	counts := make([]int, len(slots))
	idx := 0

	for _, child := range el.ChildElements() {
		j := -1
		for k := idx; k < len(slots); k++ {
			if slots[k].name == child.Tag {
				j = k
				break
			}
		}
		if j < 0 {
			// The name belongs to a slot already passed: order violation
			// (or a duplicate if that slot was filled to capacity).
			for k := 0; k < idx; k++ {
				if slots[k].name == child.Tag {
					return nil, parseErr(elementName, ErrElementOutOfOrder, child.Tag)
				}
			}
			// Trailing wildcard slot, if any, absorbs unknown names.
			for k := idx; k < len(slots); k++ {
				if slots[k].name == "*" {
					j = k
					break
				}
			}
			if j < 0 {
				return nil, parseErr(elementName, ErrUnexpectedElement, child.Tag)
			}
		}
		if slots[j].max > 0 && counts[j] >= slots[j].max {
			return nil, parseErr(elementName, ErrDuplicateElement, child.Tag)
		}
		idx = j
		counts[j]++
		out[slots[j].name] = append(out[slots[j].name], child)
	}

	return out, nil
}

// checkTag verifies the element's local name.
func checkTag(el *etree.Element, local string) error {
	if el.Tag != local {
		return parseErr(local, ErrWrongElement, el.Tag)
	}
	return nil
}

// requiredAttr extracts a mandatory XML attribute.
func requiredAttr(el *etree.Element, elementName, name string) (string, error) {
	v := el.SelectAttrValue(name, "")
	if v == "" {
		return "", parseErr(elementName, ErrMissingAttribute, name)
	}
	return v, nil
}

// newElement creates an element in the given namespace honoring opts.
func newElement(prefix, local, namespace string, opts SerializeOptions) *etree.Element {
	var el *etree.Element
	if opts.IncludePrefix {
		el = etree.NewElement(prefix + ":" + local)
	} else {
		el = etree.NewElement(local)
	}
	if opts.DeclareNamespace {
		if opts.IncludePrefix {
			el.CreateAttr("xmlns:"+prefix, namespace)
		} else {
			el.CreateAttr("xmlns", namespace)
		}
	}
	return el
}

func newAssertionElement(local string, opts SerializeOptions) *etree.Element {
	return newElement(assertionPrefix, local, AssertionNamespace, opts)
}

func newProtocolElement(local string, opts SerializeOptions) *etree.Element {
	return newElement(protocolPrefix, local, ProtocolNamespace, opts)
}

func newXEncElement(local string, opts SerializeOptions) *etree.Element {
	return newElement(xencPrefix, local, XMLEncNamespace, opts)
}

// setOptionalAttr emits the attribute only when the value is non-empty.
func setOptionalAttr(el *etree.Element, name, value string) {
	if value != "" {
		el.CreateAttr(name, value)
	}
}
