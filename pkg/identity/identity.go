package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no identity matches a lookup.
var ErrNotFound = errors.New("identity not found")

// Identity is a resolved subject in an identity store. UniversalID uniquely
// identifies the subject across realms; Name is the realm-local username.
type Identity struct {
	UniversalID string
	Name        string
	Realm       string
}

// Store is the identity-store collaborator consumed by authentication nodes.
// Implementations are provided by the embedding application (LDAP, RDBMS,
// directory services); Cedar never implements a durable store itself.
type Store interface {
	// LookupByName finds an identity by username. searchAttributes, when
	// non-empty, lists additional attributes to match the name against
	// (e.g. mail, alias lists). Returns ErrNotFound when nothing matches.
	LookupByName(ctx context.Context, name string, searchAttributes []string) (*Identity, error)

	// GetAttribute returns the values of a single attribute, or an empty
	// slice when the attribute is absent.
	GetAttribute(ctx context.Context, id *Identity, name string) ([]string, error)

	// SetAttribute replaces the values of a single attribute in memory.
	// Changes are not durable until Save is called.
	SetAttribute(ctx context.Context, id *Identity, name string, values []string) error

	// Save persists all attribute changes made since the last Save.
	Save(ctx context.Context, id *Identity) error
}
