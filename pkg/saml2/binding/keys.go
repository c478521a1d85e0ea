package binding

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	dsig "github.com/russellhaering/goxmldsig"
)

// KeyPair holds the signing credentials for one entity: the RSA private key
// and the certificate distributed to peers for verification.
type KeyPair struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	certDER     []byte
}

// LoadKeyPair parses a PEM certificate and PEM private key. Both PKCS1 and
// PKCS8 key encodings are accepted.
func LoadKeyPair(certPEM, keyPEM []byte) (*KeyPair, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		// Try PKCS8 format
		pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
	}

	return &KeyPair{
		PrivateKey:  privateKey,
		Certificate: cert,
		certDER:     certBlock.Bytes,
	}, nil
}

// KeyStore adapts the pair for XML signature creation.
func (kp *KeyPair) KeyStore() dsig.X509KeyStore {
	return &dsig.TLSCertKeyStore{
		PrivateKey:  kp.PrivateKey,
		Certificate: [][]byte{kp.certDER},
	}
}

// CertStore adapts the pair's certificate for XML signature validation.
func (kp *KeyPair) CertStore() *dsig.MemoryX509CertificateStore {
	return &dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{kp.Certificate},
	}
}
