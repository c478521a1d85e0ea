package saml2

import (
	"time"

	"github.com/beevik/etree"
)

// ArtifactResolve is the samlp:ArtifactResolve element requesting the
// message a previously issued artifact stands for. Schema order: Issuer,
// Signature, Extensions, Artifact.
type ArtifactResolve struct {
	mutability
	id           string
	issueInstant time.Time
	destination  string

	issuer     *Issuer
	signature  *etree.Element
	extensions *Extensions
	artifact   string
}

// NewArtifactResolve creates a mutable ArtifactResolve with a fresh ID and
// the current issue instant.
func NewArtifactResolve() *ArtifactResolve {
	return &ArtifactResolve{id: NewID(), issueInstant: time.Now().UTC()}
}

// ParseArtifactResolve builds a frozen ArtifactResolve from an XML element.
func ParseArtifactResolve(el *etree.Element) (*ArtifactResolve, error) {
	if err := checkTag(el, "ArtifactResolve"); err != nil {
		return nil, err
	}
	id, err := requiredAttr(el, "ArtifactResolve", "ID")
	if err != nil {
		return nil, err
	}
	version, err := requiredAttr(el, "ArtifactResolve", "Version")
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, parseErr("ArtifactResolve", ErrBadValue, "Version "+version)
	}
	instantValue, err := requiredAttr(el, "ArtifactResolve", "IssueInstant")
	if err != nil {
		return nil, err
	}

	children, err := orderedChildren(el, "ArtifactResolve", []childSlot{
		{name: "Issuer", max: 1},
		{name: "Signature", max: 1},
		{name: "Extensions", max: 1},
		{name: "Artifact", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["Artifact"]) == 0 {
		return nil, parseErr("ArtifactResolve", ErrMissingElement, "Artifact")
	}

	r := &ArtifactResolve{
		id:          id,
		destination: el.SelectAttrValue("Destination", ""),
		artifact:    children["Artifact"][0].Text(),
	}
	if r.issueInstant, err = parseTime("ArtifactResolve", instantValue); err != nil {
		return nil, err
	}
	if issuers := children["Issuer"]; len(issuers) == 1 {
		if r.issuer, err = ParseIssuer(issuers[0]); err != nil {
			return nil, err
		}
	}
	if sigs := children["Signature"]; len(sigs) == 1 {
		r.signature = sigs[0].Copy()
	}
	if exts := children["Extensions"]; len(exts) == 1 {
		if r.extensions, err = ParseExtensions(exts[0]); err != nil {
			return nil, err
		}
	}
	r.MakeImmutable()
	return r, nil
}

// ID returns the request identifier.
func (r *ArtifactResolve) ID() string { return r.id }

// IssueInstant returns the issue instant.
func (r *ArtifactResolve) IssueInstant() time.Time { return r.issueInstant }

// Destination returns the Destination attribute.
func (r *ArtifactResolve) Destination() string { return r.destination }

// Issuer returns the Issuer, if any.
func (r *ArtifactResolve) Issuer() *Issuer { return r.issuer }

// Extensions returns the Extensions, if any.
func (r *ArtifactResolve) Extensions() *Extensions { return r.extensions }

// Artifact returns the artifact string.
func (r *ArtifactResolve) Artifact() string { return r.artifact }

// SetID sets the request identifier.
func (r *ArtifactResolve) SetID(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.id = v
	return nil
}

// SetDestination sets the Destination attribute.
func (r *ArtifactResolve) SetDestination(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.destination = v
	return nil
}

// SetIssuer attaches the Issuer.
func (r *ArtifactResolve) SetIssuer(i *Issuer) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issuer = i
	return nil
}

// SetExtensions attaches the Extensions.
func (r *ArtifactResolve) SetExtensions(e *Extensions) error {
	if err := r.check(); err != nil {
		return err
	}
	r.extensions = e
	return nil
}

// SetArtifact sets the artifact string.
func (r *ArtifactResolve) SetArtifact(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.artifact = v
	return nil
}

// MakeImmutable freezes the request and all children.
func (r *ArtifactResolve) MakeImmutable() {
	if r.issuer != nil {
		r.issuer.MakeImmutable()
	}
	if r.extensions != nil {
		r.extensions.MakeImmutable()
	}
	r.freeze()
}

// Element renders the ArtifactResolve.
func (r *ArtifactResolve) Element(opts SerializeOptions) (*etree.Element, error) {
	if r.artifact == "" {
		return nil, parseErr("ArtifactResolve", ErrMissingElement, "Artifact")
	}
	el := newProtocolElement("ArtifactResolve", opts)
	el.CreateAttr("ID", r.id)
	el.CreateAttr("Version", ProtocolVersion)
	el.CreateAttr("IssueInstant", formatTime(r.issueInstant))
	setOptionalAttr(el, "Destination", r.destination)

	if r.issuer != nil {
		child, err := r.issuer.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.signature != nil {
		el.AddChild(r.signature.Copy())
	}
	if r.extensions != nil {
		child, err := r.extensions.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	artifact := newProtocolElement("Artifact", opts)
	artifact.SetText(r.artifact)
	el.AddChild(artifact)
	return el, nil
}

// ArtifactResponse is the samlp:ArtifactResponse element wrapping the
// message an artifact stood for. Schema order: Issuer, Signature,
// Extensions, Status, then at most one arbitrary payload element.
type ArtifactResponse struct {
	mutability
	id           string
	inResponseTo string
	issueInstant time.Time

	issuer     *Issuer
	signature  *etree.Element
	extensions *Extensions
	status     *Status
	payload    *etree.Element
}

// NewArtifactResponse creates a mutable ArtifactResponse with a fresh ID
// and the current issue instant.
func NewArtifactResponse() *ArtifactResponse {
	return &ArtifactResponse{id: NewID(), issueInstant: time.Now().UTC()}
}

// ParseArtifactResponse builds a frozen ArtifactResponse from an XML
// element. At most one each of Issuer, Signature, Extensions, and Status
// may appear, in that order, followed by at most one payload element;
// Status appearing before Extensions or a second Issuer is a schema
// violation.
func ParseArtifactResponse(el *etree.Element) (*ArtifactResponse, error) {
	if err := checkTag(el, "ArtifactResponse"); err != nil {
		return nil, err
	}
	id, err := requiredAttr(el, "ArtifactResponse", "ID")
	if err != nil {
		return nil, err
	}
	version, err := requiredAttr(el, "ArtifactResponse", "Version")
	if err != nil {
		return nil, err
	}
	if version != ProtocolVersion {
		return nil, parseErr("ArtifactResponse", ErrBadValue, "Version "+version)
	}
	instantValue, err := requiredAttr(el, "ArtifactResponse", "IssueInstant")
	if err != nil {
		return nil, err
	}

	children, err := orderedChildren(el, "ArtifactResponse", []childSlot{
		{name: "Issuer", max: 1},
		{name: "Signature", max: 1},
		{name: "Extensions", max: 1},
		{name: "Status", max: 1},
		{name: "*", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["Status"]) == 0 {
		return nil, parseErr("ArtifactResponse", ErrMissingElement, "Status")
	}

	r := &ArtifactResponse{
		id:           id,
		inResponseTo: el.SelectAttrValue("InResponseTo", ""),
	}
	if r.issueInstant, err = parseTime("ArtifactResponse", instantValue); err != nil {
		return nil, err
	}
	if issuers := children["Issuer"]; len(issuers) == 1 {
		if r.issuer, err = ParseIssuer(issuers[0]); err != nil {
			return nil, err
		}
	}
	if sigs := children["Signature"]; len(sigs) == 1 {
		r.signature = sigs[0].Copy()
	}
	if exts := children["Extensions"]; len(exts) == 1 {
		if r.extensions, err = ParseExtensions(exts[0]); err != nil {
			return nil, err
		}
	}
	if r.status, err = ParseStatus(children["Status"][0]); err != nil {
		return nil, err
	}
	if payloads := children["*"]; len(payloads) == 1 {
		r.payload = payloads[0].Copy()
	}
	r.MakeImmutable()
	return r, nil
}

// ParseArtifactResponseString parses an ArtifactResponse from an XML string.
func ParseArtifactResponseString(xml string) (*ArtifactResponse, error) {
	el, err := ParseElement(xml)
	if err != nil {
		return nil, err
	}
	return ParseArtifactResponse(el)
}

// ID returns the response identifier.
func (r *ArtifactResponse) ID() string { return r.id }

// InResponseTo returns the correlated ArtifactResolve ID.
func (r *ArtifactResponse) InResponseTo() string { return r.inResponseTo }

// IssueInstant returns the issue instant.
func (r *ArtifactResponse) IssueInstant() time.Time { return r.issueInstant }

// Issuer returns the Issuer, if any.
func (r *ArtifactResponse) Issuer() *Issuer { return r.issuer }

// Extensions returns the Extensions, if any.
func (r *ArtifactResponse) Extensions() *Extensions { return r.extensions }

// Status returns the Status.
func (r *ArtifactResponse) Status() *Status { return r.status }

// Payload returns a copy of the wrapped protocol message element, if any.
func (r *ArtifactResponse) Payload() *etree.Element {
	if r.payload == nil {
		return nil
	}
	return r.payload.Copy()
}

// SetID sets the response identifier.
func (r *ArtifactResponse) SetID(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.id = v
	return nil
}

// SetInResponseTo sets the correlated request ID.
func (r *ArtifactResponse) SetInResponseTo(v string) error {
	if err := r.check(); err != nil {
		return err
	}
	r.inResponseTo = v
	return nil
}

// SetIssueInstant sets the issue instant.
func (r *ArtifactResponse) SetIssueInstant(t time.Time) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issueInstant = t.UTC()
	return nil
}

// SetIssuer attaches the Issuer.
func (r *ArtifactResponse) SetIssuer(i *Issuer) error {
	if err := r.check(); err != nil {
		return err
	}
	r.issuer = i
	return nil
}

// SetExtensions attaches the Extensions.
func (r *ArtifactResponse) SetExtensions(e *Extensions) error {
	if err := r.check(); err != nil {
		return err
	}
	r.extensions = e
	return nil
}

// SetStatus attaches the Status.
func (r *ArtifactResponse) SetStatus(s *Status) error {
	if err := r.check(); err != nil {
		return err
	}
	r.status = s
	return nil
}

// SetPayload attaches the wrapped protocol message element.
func (r *ArtifactResponse) SetPayload(el *etree.Element) error {
	if err := r.check(); err != nil {
		return err
	}
	r.payload = el.Copy()
	return nil
}

// MakeImmutable freezes the response and all children.
func (r *ArtifactResponse) MakeImmutable() {
	if r.issuer != nil {
		r.issuer.MakeImmutable()
	}
	if r.extensions != nil {
		r.extensions.MakeImmutable()
	}
	if r.status != nil {
		r.status.MakeImmutable()
	}
	r.freeze()
}

// Element renders the ArtifactResponse.
func (r *ArtifactResponse) Element(opts SerializeOptions) (*etree.Element, error) {
	if r.status == nil {
		return nil, parseErr("ArtifactResponse", ErrMissingElement, "Status")
	}
	el := newProtocolElement("ArtifactResponse", opts)
	el.CreateAttr("ID", r.id)
	setOptionalAttr(el, "InResponseTo", r.inResponseTo)
	el.CreateAttr("Version", ProtocolVersion)
	el.CreateAttr("IssueInstant", formatTime(r.issueInstant))

	if r.issuer != nil {
		child, err := r.issuer.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	if r.signature != nil {
		el.AddChild(r.signature.Copy())
	}
	if r.extensions != nil {
		child, err := r.extensions.Element(opts)
		if err != nil {
			return nil, err
		}
		el.AddChild(child)
	}
	status, err := r.status.Element(opts)
	if err != nil {
		return nil, err
	}
	el.AddChild(status)
	if r.payload != nil {
		el.AddChild(r.payload.Copy())
	}
	return el, nil
}
