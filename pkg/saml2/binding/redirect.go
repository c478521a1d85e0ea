package binding

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"

	"github.com/cedarauth/cedar/pkg/saml2"
)

// SigAlgRSASHA256 is the signature algorithm URI used for detached
// HTTP-Redirect signatures.
const SigAlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"

// maxInflatedSize bounds decompression so a hostile peer cannot exhaust
// memory with a deflate bomb.
const maxInflatedSize = 1 << 20

// EncodeRedirect deflates and base64-encodes a protocol object, returning
// the destination URL carrying the message in the query string. When kp is
// non-nil the query is signed with a detached RSA-SHA256 signature per the
// HTTP-Redirect binding.
func EncodeRedirect(obj saml2.Object, destination, field, relayState string, kp *KeyPair) (string, error) {
	xml, err := saml2.ToXMLString(obj, true, true)
	if err != nil {
		return "", fmt.Errorf("encode redirect message: %w", err)
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("encode redirect message: %w", err)
	}
	if _, err := w.Write([]byte(xml)); err != nil {
		return "", fmt.Errorf("encode redirect message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("encode redirect message: %w", err)
	}

	dest, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("encode redirect message: %w", err)
	}

	query := url.Values{}
	query.Set(field, base64.StdEncoding.EncodeToString(buf.Bytes()))
	if relayState != "" {
		query.Set(FieldRelayState, relayState)
	}

	if kp != nil {
		query.Set("SigAlg", SigAlgRSASHA256)
		signed := signedQueryString(query, field)
		digest := sha256.Sum256([]byte(signed))
		sig, err := rsa.SignPKCS1v15(rand.Reader, kp.PrivateKey, crypto.SHA256, digest[:])
		if err != nil {
			return "", fmt.Errorf("sign redirect message: %w", err)
		}
		query.Set("Signature", base64.StdEncoding.EncodeToString(sig))
	}

	dest.RawQuery = query.Encode()
	return dest.String(), nil
}

// DecodeRedirect reverses EncodeRedirect's compression and encoding,
// returning the raw XML of the message.
func DecodeRedirect(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("decode redirect message: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	inflated, err := io.ReadAll(io.LimitReader(r, maxInflatedSize))
	if err != nil {
		return "", fmt.Errorf("decode redirect message: %w", err)
	}
	return string(inflated), nil
}

// VerifyRedirect checks the detached signature of a received redirect query
// against the sender's public key. query must contain the message field,
// SigAlg, and Signature parameters as received.
func VerifyRedirect(query url.Values, field string, pub *rsa.PublicKey) error {
	sigAlg := query.Get("SigAlg")
	if sigAlg != SigAlgRSASHA256 {
		return fmt.Errorf("unsupported signature algorithm %q", sigAlg)
	}
	sig, err := base64.StdEncoding.DecodeString(query.Get("Signature"))
	if err != nil {
		return fmt.Errorf("signature not base64: %w", err)
	}

	signed := signedQueryString(query, field)
	digest := sha256.Sum256([]byte(signed))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// signedQueryString builds the exact byte string covered by the detached
// signature: message, then RelayState if present, then SigAlg, each
// URL-encoded, in that order.
func signedQueryString(query url.Values, field string) string {
	var buf bytes.Buffer
	buf.WriteString(field)
	buf.WriteByte('=')
	buf.WriteString(url.QueryEscape(query.Get(field)))
	if rs := query.Get(FieldRelayState); rs != "" {
		buf.WriteString("&RelayState=")
		buf.WriteString(url.QueryEscape(rs))
	}
	buf.WriteString("&SigAlg=")
	buf.WriteString(url.QueryEscape(query.Get("SigAlg")))
	return buf.String()
}
