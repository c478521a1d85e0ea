package binding

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/cedarauth/cedar/pkg/saml2"
)

// Form field names defined by the HTTP-POST binding.
const (
	FieldSAMLRequest  = "SAMLRequest"
	FieldSAMLResponse = "SAMLResponse"
	FieldRelayState   = "RelayState"
)

var postFormTemplate = template.Must(template.New("samlpost").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
<input type="hidden" name="{{.Field}}" value="{{.Message}}"/>
{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}"/>{{end}}
<noscript><input type="submit" value="Continue"/></noscript>
</form>
</body>
</html>
`))

// PostMessage carries an encoded SAML message ready for HTTP-POST delivery.
type PostMessage struct {
	Action     string
	Field      string
	Message    string
	RelayState string
}

// EncodePost base64-encodes a protocol object for the HTTP-POST binding.
// field selects SAMLRequest or SAMLResponse.
func EncodePost(obj saml2.Object, destination, field, relayState string) (*PostMessage, error) {
	xml, err := saml2.ToXMLString(obj, true, true)
	if err != nil {
		return nil, fmt.Errorf("encode post message: %w", err)
	}
	return &PostMessage{
		Action:     destination,
		Field:      field,
		Message:    base64.StdEncoding.EncodeToString([]byte(xml)),
		RelayState: relayState,
	}, nil
}

// HTML renders the self-submitting form page delivering the message.
func (m *PostMessage) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := postFormTemplate.Execute(&buf, m); err != nil {
		return nil, fmt.Errorf("render post form: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePost reverses EncodePost, returning the raw XML of the posted
// message.
func DecodePost(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("decode post message: %w", err)
	}
	return string(raw), nil
}

// SignEnveloped signs an XML element with an enveloped XML signature and
// returns the signed element. Used for messages delivered over HTTP-POST,
// where the signature travels inside the message.
func SignEnveloped(el *etree.Element, kp *KeyPair) (*etree.Element, error) {
	ctx := dsig.NewDefaultSigningContext(kp.KeyStore())
	signed, err := ctx.SignEnveloped(el)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return signed, nil
}

// VerifyEnveloped validates an enveloped XML signature against the trusted
// certificates and returns the validated element.
func VerifyEnveloped(el *etree.Element, certs *dsig.MemoryX509CertificateStore) (*etree.Element, error) {
	ctx := dsig.NewDefaultValidationContext(certs)
	validated, err := ctx.Validate(el)
	if err != nil {
		return nil, fmt.Errorf("validate signature: %w", err)
	}
	return validated, nil
}
