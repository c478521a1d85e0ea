package proxy

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cedarauth/cedar/pkg/saml2"
)

// Correlation is the state pinned while a proxied round trip is in flight:
// the derived request sent upstream, the original SP request it stands in
// for, and the caller's relay state.
type Correlation struct {
	DerivedRequest  *saml2.AuthnRequest
	OriginalRequest *saml2.AuthnRequest
	RelayState      string
}

// CorrelationCache is the in-process half of correlation storage, keyed by
// the derived request ID with TTL eviction. It is safe for concurrent use.
type CorrelationCache struct {
	cache *lru.LRU[string, *Correlation]
}

// NewCorrelationCache creates a cache holding up to size in-flight proxied
// requests, evicting entries after ttl.
func NewCorrelationCache(size int, ttl time.Duration) *CorrelationCache {
	return &CorrelationCache{cache: lru.NewLRU[string, *Correlation](size, nil, ttl)}
}

// Put stores correlation state under the derived request's ID.
func (c *CorrelationCache) Put(requestID string, corr *Correlation) {
	c.cache.Add(requestID, corr)
}

// Take retrieves and removes correlation state. The second return is false
// on a miss, which callers resolve against the durable repository.
func (c *CorrelationCache) Take(requestID string) (*Correlation, bool) {
	corr, ok := c.cache.Get(requestID)
	if ok {
		c.cache.Remove(requestID)
	}
	return corr, ok
}

// Len returns the number of in-flight correlations.
func (c *CorrelationCache) Len() int {
	return c.cache.Len()
}
