package binding

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarauth/cedar/pkg/saml2"
)

func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	kp, err := LoadKeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return kp
}

func testAuthnRequest(t *testing.T) *saml2.AuthnRequest {
	t.Helper()

	req := saml2.NewAuthnRequest()
	require.NoError(t, req.SetDestination("https://idp.example.com/sso"))
	require.NoError(t, req.SetIssuer(saml2.NewIssuerValue("https://sp.example.com")))
	return req
}

func TestLoadKeyPairPKCS8(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "sp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	kp, err := LoadKeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
	)
	require.NoError(t, err)
	assert.Equal(t, priv.N, kp.PrivateKey.N)
}

func TestLoadKeyPairRejectsBadPEM(t *testing.T) {
	_, err := LoadKeyPair([]byte("not pem"), []byte("not pem"))
	assert.ErrorContains(t, err, "decode certificate PEM")
}

func TestPostEncodeDecodeRoundTrip(t *testing.T) {
	req := testAuthnRequest(t)

	msg, err := EncodePost(req, "https://idp.example.com/sso", FieldSAMLRequest, "relay-123")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/sso", msg.Action)

	xml, err := DecodePost(msg.Message)
	require.NoError(t, err)

	parsed, err := saml2.ParseAuthnRequestString(xml)
	require.NoError(t, err)
	assert.Equal(t, req.ID(), parsed.ID())
	assert.Equal(t, "https://sp.example.com", parsed.Issuer().Value())
}

func TestPostFormHTML(t *testing.T) {
	msg, err := EncodePost(testAuthnRequest(t), "https://idp.example.com/sso", FieldSAMLRequest, "relay-123")
	require.NoError(t, err)

	page, err := msg.HTML()
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, `action="https://idp.example.com/sso"`)
	assert.Contains(t, html, `name="SAMLRequest"`)
	assert.Contains(t, html, `name="RelayState" value="relay-123"`)
	assert.Contains(t, html, "document.forms[0].submit()")
}

func TestRedirectEncodeDecodeRoundTrip(t *testing.T) {
	req := testAuthnRequest(t)

	loc, err := EncodeRedirect(req, "https://idp.example.com/sso", FieldSAMLRequest, "relay-123", nil)
	require.NoError(t, err)

	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "relay-123", u.Query().Get(FieldRelayState))

	xml, err := DecodeRedirect(u.Query().Get(FieldSAMLRequest))
	require.NoError(t, err)

	parsed, err := saml2.ParseAuthnRequestString(xml)
	require.NoError(t, err)
	assert.Equal(t, req.ID(), parsed.ID())
}

func TestRedirectSignatureVerifies(t *testing.T) {
	kp := testKeyPair(t)

	loc, err := EncodeRedirect(testAuthnRequest(t), "https://idp.example.com/sso", FieldSAMLRequest, "relay-123", kp)
	require.NoError(t, err)

	u, err := url.Parse(loc)
	require.NoError(t, err)
	query := u.Query()
	assert.Equal(t, SigAlgRSASHA256, query.Get("SigAlg"))
	require.NotEmpty(t, query.Get("Signature"))

	assert.NoError(t, VerifyRedirect(query, FieldSAMLRequest, &kp.PrivateKey.PublicKey))
}

func TestRedirectSignatureRejectsTampering(t *testing.T) {
	kp := testKeyPair(t)

	loc, err := EncodeRedirect(testAuthnRequest(t), "https://idp.example.com/sso", FieldSAMLRequest, "relay-123", kp)
	require.NoError(t, err)

	u, err := url.Parse(loc)
	require.NoError(t, err)
	query := u.Query()
	query.Set(FieldRelayState, "attacker-chosen")

	assert.Error(t, VerifyRedirect(query, FieldSAMLRequest, &kp.PrivateKey.PublicKey))
}

func TestRedirectSignatureRejectsWrongKey(t *testing.T) {
	kp := testKeyPair(t)
	other := testKeyPair(t)

	loc, err := EncodeRedirect(testAuthnRequest(t), "https://idp.example.com/sso", FieldSAMLRequest, "", kp)
	require.NoError(t, err)

	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Error(t, VerifyRedirect(u.Query(), FieldSAMLRequest, &other.PrivateKey.PublicKey))
}

func TestSignEnvelopedAndVerify(t *testing.T) {
	kp := testKeyPair(t)

	req := testAuthnRequest(t)
	el, err := req.Element(saml2.SerializeOptions{IncludePrefix: true, DeclareNamespace: true})
	require.NoError(t, err)

	signed, err := SignEnveloped(el, kp)
	require.NoError(t, err)

	found := false
	for _, child := range signed.ChildElements() {
		if child.Tag == "Signature" {
			found = true
		}
	}
	require.True(t, found, "signed element must carry an enveloped Signature child")

	validated, err := VerifyEnveloped(signed, kp.CertStore())
	require.NoError(t, err)
	assert.Equal(t, "AuthnRequest", validated.Tag)
}

func TestDecodeRedirectRejectsGarbage(t *testing.T) {
	_, err := DecodeRedirect("%%%not-base64%%%")
	assert.Error(t, err)

	_, err = DecodeRedirect(strings.Repeat("A", 16))
	assert.Error(t, err)
}
