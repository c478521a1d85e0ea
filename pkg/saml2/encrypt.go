package saml2

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/beevik/etree"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// XML Encryption algorithm URIs supported by the codec.
const (
	AlgAES128GCM = "http://www.w3.org/2009/xmlenc11#aes128-gcm"
	AlgAES256GCM = "http://www.w3.org/2009/xmlenc11#aes256-gcm"
	AlgRSAOAEP   = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
)

// EncryptionConfig describes how attribute values are encrypted for a
// recipient: the symmetric data algorithm and key size, the key-wrap
// algorithm, and the recipient's public key. KeyCache, when set, lets
// repeated encryptions to the same recipient reuse one generated symmetric
// key and its wrapped form, skipping the expensive key-wrap operation.
type EncryptionConfig struct {
	DataAlgorithm    string
	KeySize          int // bits
	KeyWrapAlgorithm string
	RecipientKey     *rsa.PublicKey
	KeyCache         *KeyCache
}

// cachedKey pairs a generated symmetric key with its wrapped form so both
// can be reused for one recipient.
type cachedKey struct {
	key     []byte
	wrapped []byte
}

// KeyCache caches generated symmetric keys per recipient entity ID with a
// TTL so long-running processes rotate keys.
type KeyCache struct {
	cache *lru.LRU[string, *cachedKey]
}

// NewKeyCache creates a key cache holding up to size recipients, rotating
// entries after ttl.
func NewKeyCache(size int, ttl time.Duration) *KeyCache {
	return &KeyCache{cache: lru.NewLRU[string, *cachedKey](size, nil, ttl)}
}

// Encrypt produces an EncryptedAttribute: the serialized attribute XML is
// sealed with AES-GCM under a symmetric key wrapped with RSA-OAEP for the
// recipient. recipientEntityID is an optional cache key enabling symmetric
// key reuse across calls; when empty a fresh key is generated and wrapped
// every call.
func (a *Attribute) Encrypt(cfg EncryptionConfig, recipientEntityID string) (*EncryptedAttribute, error) {
	if cfg.RecipientKey == nil {
		return nil, fmt.Errorf("encrypt attribute %q: no recipient key", a.name)
	}
	switch cfg.DataAlgorithm {
	case AlgAES128GCM, AlgAES256GCM:
	default:
		return nil, fmt.Errorf("encrypt attribute %q: unsupported data algorithm %q", a.name, cfg.DataAlgorithm)
	}
	if cfg.KeyWrapAlgorithm != AlgRSAOAEP {
		return nil, fmt.Errorf("encrypt attribute %q: unsupported key-wrap algorithm %q", a.name, cfg.KeyWrapAlgorithm)
	}
	keyBytes := cfg.KeySize / 8
	if keyBytes != 16 && keyBytes != 32 {
		return nil, fmt.Errorf("encrypt attribute %q: unsupported key size %d", a.name, cfg.KeySize)
	}

	ck, err := resolveKey(cfg, recipientEntityID, keyBytes)
	if err != nil {
		return nil, err
	}

	plaintext, err := ToXMLString(a, true, true)
	if err != nil {
		return nil, fmt.Errorf("encrypt attribute %q: %w", a.name, err)
	}

	block, err := aes.NewCipher(ck.key)
	if err != nil {
		return nil, fmt.Errorf("encrypt attribute %q: %w", a.name, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encrypt attribute %q: %w", a.name, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("encrypt attribute %q: %w", a.name, err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	ea := &EncryptedAttribute{
		dataAlgorithm:    cfg.DataAlgorithm,
		keyWrapAlgorithm: cfg.KeyWrapAlgorithm,
		cipherValue:      sealed,
		wrappedKey:       ck.wrapped,
	}
	return ea, nil
}

// resolveKey returns the symmetric key and wrapped key for a recipient,
// consulting the cache when a recipient ID is given.
func resolveKey(cfg EncryptionConfig, recipientEntityID string, keyBytes int) (*cachedKey, error) {
	if recipientEntityID != "" && cfg.KeyCache != nil {
		if ck, ok := cfg.KeyCache.cache.Get(recipientEntityID); ok && len(ck.key) == keyBytes {
			return ck, nil
		}
	}

	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, cfg.RecipientKey, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	ck := &cachedKey{key: key, wrapped: wrapped}

	if recipientEntityID != "" && cfg.KeyCache != nil {
		cfg.KeyCache.cache.Add(recipientEntityID, ck)
	}
	return ck, nil
}

// EncryptedAttribute is the saml:EncryptedAttribute element: an
// xenc:EncryptedData carrying the sealed attribute plus an
// xenc:EncryptedKey carrying the wrapped symmetric key.
type EncryptedAttribute struct {
	mutability
	dataAlgorithm    string
	keyWrapAlgorithm string
	cipherValue      []byte
	wrappedKey       []byte
}

// ParseEncryptedAttribute builds a frozen EncryptedAttribute from an XML
// element.
func ParseEncryptedAttribute(el *etree.Element) (*EncryptedAttribute, error) {
	if err := checkTag(el, "EncryptedAttribute"); err != nil {
		return nil, err
	}
	children, err := orderedChildren(el, "EncryptedAttribute", []childSlot{
		{name: "EncryptedData", max: 1},
		{name: "EncryptedKey", max: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(children["EncryptedData"]) == 0 {
		return nil, parseErr("EncryptedAttribute", ErrMissingElement, "EncryptedData")
	}
	if len(children["EncryptedKey"]) == 0 {
		return nil, parseErr("EncryptedAttribute", ErrMissingElement, "EncryptedKey")
	}

	ea := &EncryptedAttribute{}
	if ea.dataAlgorithm, ea.cipherValue, err = parseEncBlock(children["EncryptedData"][0], "EncryptedData"); err != nil {
		return nil, err
	}
	if ea.keyWrapAlgorithm, ea.wrappedKey, err = parseEncBlock(children["EncryptedKey"][0], "EncryptedKey"); err != nil {
		return nil, err
	}
	ea.MakeImmutable()
	return ea, nil
}

// parseEncBlock reads EncryptionMethod/@Algorithm and
// CipherData/CipherValue from an EncryptedData or EncryptedKey element.
func parseEncBlock(el *etree.Element, name string) (string, []byte, error) {
	children, err := orderedChildren(el, name, []childSlot{
		{name: "EncryptionMethod", max: 1},
		{name: "CipherData", max: 1},
	})
	if err != nil {
		return "", nil, err
	}
	if len(children["EncryptionMethod"]) == 0 {
		return "", nil, parseErr(name, ErrMissingElement, "EncryptionMethod")
	}
	if len(children["CipherData"]) == 0 {
		return "", nil, parseErr(name, ErrMissingElement, "CipherData")
	}
	algorithm, err := requiredAttr(children["EncryptionMethod"][0], name, "Algorithm")
	if err != nil {
		return "", nil, err
	}
	var value *etree.Element
	for _, c := range children["CipherData"][0].ChildElements() {
		if c.Tag == "CipherValue" {
			value = c
			break
		}
	}
	if value == nil {
		return "", nil, parseErr(name, ErrMissingElement, "CipherValue")
	}
	raw, err := base64.StdEncoding.DecodeString(value.Text())
	if err != nil {
		return "", nil, parseErr(name, ErrBadValue, "CipherValue not base64")
	}
	return algorithm, raw, nil
}

// DataAlgorithm returns the symmetric data-encryption algorithm URI.
func (ea *EncryptedAttribute) DataAlgorithm() string { return ea.dataAlgorithm }

// KeyWrapAlgorithm returns the key-wrap algorithm URI.
func (ea *EncryptedAttribute) KeyWrapAlgorithm() string { return ea.keyWrapAlgorithm }

// WrappedKey returns a copy of the RSA-wrapped symmetric key.
func (ea *EncryptedAttribute) WrappedKey() []byte {
	return append([]byte(nil), ea.wrappedKey...)
}

// Decrypt unwraps the symmetric key with the recipient's private key,
// opens the sealed attribute XML, and parses it back into an Attribute.
func (ea *EncryptedAttribute) Decrypt(priv *rsa.PrivateKey) (*Attribute, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ea.wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decrypt attribute: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("decrypt attribute: %w", err)
	}
	if len(ea.cipherValue) < gcm.NonceSize() {
		return nil, fmt.Errorf("decrypt attribute: ciphertext too short")
	}
	nonce, ct := ea.cipherValue[:gcm.NonceSize()], ea.cipherValue[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt attribute: %w", err)
	}
	el, err := ParseElement(string(plaintext))
	if err != nil {
		return nil, err
	}
	return ParseAttribute(el)
}

// MakeImmutable freezes the EncryptedAttribute.
func (ea *EncryptedAttribute) MakeImmutable() {
	ea.freeze()
}

// Element renders the EncryptedAttribute.
func (ea *EncryptedAttribute) Element(opts SerializeOptions) (*etree.Element, error) {
	el := newAssertionElement("EncryptedAttribute", opts)

	data := newXEncElement("EncryptedData", opts)
	data.CreateAttr("Type", XMLEncNamespace+"Element")
	method := newXEncElement("EncryptionMethod", opts)
	method.CreateAttr("Algorithm", ea.dataAlgorithm)
	data.AddChild(method)
	cipherData := newXEncElement("CipherData", opts)
	cipherValue := newXEncElement("CipherValue", opts)
	cipherValue.SetText(base64.StdEncoding.EncodeToString(ea.cipherValue))
	cipherData.AddChild(cipherValue)
	data.AddChild(cipherData)
	el.AddChild(data)

	key := newXEncElement("EncryptedKey", opts)
	keyMethod := newXEncElement("EncryptionMethod", opts)
	keyMethod.CreateAttr("Algorithm", ea.keyWrapAlgorithm)
	key.AddChild(keyMethod)
	keyData := newXEncElement("CipherData", opts)
	keyValue := newXEncElement("CipherValue", opts)
	keyValue.SetText(base64.StdEncoding.EncodeToString(ea.wrappedKey))
	keyData.AddChild(keyValue)
	key.AddChild(keyData)
	el.AddChild(key)

	return el, nil
}
