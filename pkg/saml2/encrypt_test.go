package saml2

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptionConfig(t *testing.T) (EncryptionConfig, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cfg := EncryptionConfig{
		DataAlgorithm:    AlgAES256GCM,
		KeySize:          256,
		KeyWrapAlgorithm: AlgRSAOAEP,
		RecipientKey:     &priv.PublicKey,
		KeyCache:         NewKeyCache(16, time.Minute),
	}
	return cfg, priv
}

func TestAttributeEncryptDecryptRoundTrip(t *testing.T) {
	cfg, priv := testEncryptionConfig(t)

	attr := NewAttribute("mail")
	require.NoError(t, attr.AddValue("alice@example.com"))
	require.NoError(t, attr.AddValue("a.liddell@example.com"))

	ea, err := attr.Encrypt(cfg, "https://sp.example.com")
	require.NoError(t, err)
	assert.Equal(t, AlgAES256GCM, ea.DataAlgorithm())
	assert.Equal(t, AlgRSAOAEP, ea.KeyWrapAlgorithm())

	got, err := ea.Decrypt(priv)
	require.NoError(t, err)
	assert.Equal(t, "mail", got.Name())
	assert.Equal(t, []string{"alice@example.com", "a.liddell@example.com"}, got.Values())
}

func TestEncryptedAttributeSerializeParseDecrypt(t *testing.T) {
	cfg, priv := testEncryptionConfig(t)

	attr := NewAttribute("memberOf")
	require.NoError(t, attr.AddValue("engineering"))

	ea, err := attr.Encrypt(cfg, "")
	require.NoError(t, err)

	xml, err := ToXMLString(ea, true, true)
	require.NoError(t, err)

	el, err := ParseElement(xml)
	require.NoError(t, err)
	parsed, err := ParseEncryptedAttribute(el)
	require.NoError(t, err)

	got, err := parsed.Decrypt(priv)
	require.NoError(t, err)
	assert.Equal(t, "memberOf", got.Name())
	assert.Equal(t, []string{"engineering"}, got.Values())
}

func TestKeyCacheReusesWrappedKeyPerRecipient(t *testing.T) {
	cfg, _ := testEncryptionConfig(t)

	attr := NewAttribute("mail")
	require.NoError(t, attr.AddValue("alice@example.com"))

	first, err := attr.Encrypt(cfg, "https://sp.example.com")
	require.NoError(t, err)
	second, err := attr.Encrypt(cfg, "https://sp.example.com")
	require.NoError(t, err)
	other, err := attr.Encrypt(cfg, "https://other-sp.example.com")
	require.NoError(t, err)

	assert.Equal(t, first.WrappedKey(), second.WrappedKey(),
		"same recipient must reuse the cached wrapped key")
	assert.NotEqual(t, first.WrappedKey(), other.WrappedKey(),
		"distinct recipients must not share keys")
}

func TestEmptyRecipientIDSkipsCache(t *testing.T) {
	cfg, _ := testEncryptionConfig(t)

	attr := NewAttribute("mail")
	require.NoError(t, attr.AddValue("alice@example.com"))

	first, err := attr.Encrypt(cfg, "")
	require.NoError(t, err)
	second, err := attr.Encrypt(cfg, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.WrappedKey(), second.WrappedKey(),
		"a fresh key must be generated when no recipient ID is given")
}

func TestEncryptRejectsBadConfig(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	attr := NewAttribute("mail")
	require.NoError(t, attr.AddValue("alice@example.com"))

	_, err = attr.Encrypt(EncryptionConfig{
		DataAlgorithm:    AlgAES256GCM,
		KeySize:          256,
		KeyWrapAlgorithm: AlgRSAOAEP,
	}, "")
	assert.ErrorContains(t, err, "no recipient key")

	_, err = attr.Encrypt(EncryptionConfig{
		DataAlgorithm:    "http://www.w3.org/2001/04/xmlenc#tripledes-cbc",
		KeySize:          192,
		KeyWrapAlgorithm: AlgRSAOAEP,
		RecipientKey:     &priv.PublicKey,
	}, "")
	assert.ErrorContains(t, err, "unsupported data algorithm")

	_, err = attr.Encrypt(EncryptionConfig{
		DataAlgorithm:    AlgAES256GCM,
		KeySize:          200,
		KeyWrapAlgorithm: AlgRSAOAEP,
		RecipientKey:     &priv.PublicKey,
	}, "")
	assert.ErrorContains(t, err, "unsupported key size")
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	cfg, _ := testEncryptionConfig(t)
	wrongKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	attr := NewAttribute("mail")
	require.NoError(t, attr.AddValue("alice@example.com"))

	ea, err := attr.Encrypt(cfg, "")
	require.NoError(t, err)

	_, err = ea.Decrypt(wrongKey)
	assert.Error(t, err)
}
