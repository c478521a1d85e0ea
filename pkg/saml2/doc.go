// Package saml2 implements the SAML 2.0 protocol object codec: building,
// serializing, parsing, validating, and encrypting the fixed set of
// protocol and assertion elements used by the Cedar federation layer.
//
// # Lifecycle
//
// Every object supports two construction paths:
//
//   - builder: New* returns a mutable object; setters attach attributes and
//     children until MakeImmutable freezes it.
//   - parse: Parse* reads an XML element, validating attribute presence and
//     the schema-mandated child order, and returns an already-frozen object.
//
// After MakeImmutable every mutator returns ErrImmutable; the freeze
// propagates to all children attached at freeze time, after which the
// object is safe for unsynchronized concurrent reads.
//
// # Schema order
//
// Child elements are validated in the fixed order the SAML 2.0 schema
// mandates per type. Parsing rejects unexpected element names, elements
// repeated beyond their cardinality, and elements out of sequence, each
// with a distinct error kind; see ParseError.
//
// # Round trip
//
// Serialization emits children in the same fixed order used for parsing,
// so parse(serialize(x)) reproduces x for every valid object.
//
// # Encryption
//
// Attribute.Encrypt seals an attribute with AES-GCM under a symmetric key
// wrapped with RSA-OAEP for a recipient. A KeyCache allows reuse of the
// generated key per recipient entity ID, skipping repeated key wraps.
package saml2
