package proxy

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sync"

	"github.com/russellhaering/gosaml2/types"
)

var (
	// ErrNoMetadata indicates no entity descriptor is registered for the
	// requested entity ID.
	ErrNoMetadata = errors.New("no metadata descriptor for entity")

	// ErrNoEndpoint indicates the entity's descriptor declares no SSO
	// endpoint at all.
	ErrNoEndpoint = errors.New("no single sign-on endpoint in metadata")
)

// MetadataRegistry holds the entity descriptors of known upstream IDPs,
// keyed by entity ID. It is safe for concurrent use.
type MetadataRegistry struct {
	mu       sync.RWMutex
	entities map[string]*types.EntityDescriptor
}

// NewMetadataRegistry creates an empty registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{entities: make(map[string]*types.EntityDescriptor)}
}

// Register adds or replaces an entity descriptor.
func (r *MetadataRegistry) Register(desc *types.EntityDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[desc.EntityID] = desc
}

// RegisterXML parses a metadata document and registers its descriptor.
func (r *MetadataRegistry) RegisterXML(raw []byte) (*types.EntityDescriptor, error) {
	var desc types.EntityDescriptor
	if err := xml.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("parse entity descriptor: %w", err)
	}
	r.Register(&desc)
	return &desc, nil
}

// Lookup returns the descriptor for an entity ID.
func (r *MetadataRegistry) Lookup(entityID string) (*types.EntityDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, entityID)
	}
	return desc, nil
}

// WantsSignedRequests reports whether the entity's descriptor asks for
// signed AuthnRequests. Unknown entities default to false.
func (r *MetadataRegistry) WantsSignedRequests(entityID string) bool {
	desc, err := r.Lookup(entityID)
	if err != nil || desc.IDPSSODescriptor == nil {
		return false
	}
	return desc.IDPSSODescriptor.WantAuthnRequestsSigned
}

// SSOEndpoint returns the entity's single sign-on location for the given
// binding. When no endpoint declares that binding the first declared
// endpoint is used instead; an empty endpoint list is an error.
func (r *MetadataRegistry) SSOEndpoint(entityID, binding string) (location, actualBinding string, err error) {
	desc, err := r.Lookup(entityID)
	if err != nil {
		return "", "", err
	}
	if desc.IDPSSODescriptor == nil || len(desc.IDPSSODescriptor.SingleSignOnServices) == 0 {
		return "", "", fmt.Errorf("%w: %s", ErrNoEndpoint, entityID)
	}
	for _, svc := range desc.IDPSSODescriptor.SingleSignOnServices {
		if svc.Binding == binding {
			return svc.Location, svc.Binding, nil
		}
	}
	first := desc.IDPSSODescriptor.SingleSignOnServices[0]
	return first.Location, first.Binding, nil
}
