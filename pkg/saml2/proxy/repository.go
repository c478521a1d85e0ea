package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cedarauth/cedar/pkg/saml2"
)

// TokenRepository is the durable half of correlation storage. Entries
// written here survive failover to another server instance; the in-process
// cache is consulted first and this repository covers its misses.
type TokenRepository interface {
	Save(ctx context.Context, requestID string, corr *Correlation, ttl time.Duration) error
	Retrieve(ctx context.Context, requestID string) (*Correlation, error)
	Delete(ctx context.Context, requestID string) error
}

// correlationRecord is the wire form of a Correlation: the protocol objects
// travel as XML so any instance can reconstruct them.
type correlationRecord struct {
	DerivedXML  string `json:"derived"`
	OriginalXML string `json:"original"`
	RelayState  string `json:"relay_state"`
}

// RedisTokenRepository stores correlation state in Redis with a TTL.
type RedisTokenRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenRepository creates a repository using the given client.
// prefix namespaces keys, defaulting to "saml2:proxy".
func NewRedisTokenRepository(client *redis.Client, prefix string) *RedisTokenRepository {
	if prefix == "" {
		prefix = "saml2:proxy"
	}
	return &RedisTokenRepository{client: client, prefix: prefix}
}

func (r *RedisTokenRepository) key(requestID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, requestID)
}

// Save writes correlation state under the derived request ID.
func (r *RedisTokenRepository) Save(ctx context.Context, requestID string, corr *Correlation, ttl time.Duration) error {
	derived, err := saml2.ToXMLString(corr.DerivedRequest, true, true)
	if err != nil {
		return fmt.Errorf("marshal derived request: %w", err)
	}
	original, err := saml2.ToXMLString(corr.OriginalRequest, true, true)
	if err != nil {
		return fmt.Errorf("marshal original request: %w", err)
	}

	data, err := json.Marshal(correlationRecord{
		DerivedXML:  derived,
		OriginalXML: original,
		RelayState:  corr.RelayState,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal correlation: %w", err)
	}
	return r.client.Set(ctx, r.key(requestID), data, ttl).Err()
}

// Retrieve reads correlation state. A missing or expired entry returns
// (nil, nil); callers treat that as stale correlation.
func (r *RedisTokenRepository) Retrieve(ctx context.Context, requestID string) (*Correlation, error) {
	data, err := r.client.Get(ctx, r.key(requestID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec correlationRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// Corrupt entries are useless; drop them.
		r.client.Del(ctx, r.key(requestID))
		return nil, fmt.Errorf("failed to unmarshal correlation: %w", err)
	}

	derived, err := saml2.ParseAuthnRequestString(rec.DerivedXML)
	if err != nil {
		return nil, fmt.Errorf("parse stored derived request: %w", err)
	}
	original, err := saml2.ParseAuthnRequestString(rec.OriginalXML)
	if err != nil {
		return nil, fmt.Errorf("parse stored original request: %w", err)
	}
	return &Correlation{
		DerivedRequest:  derived,
		OriginalRequest: original,
		RelayState:      rec.RelayState,
	}, nil
}

// Delete removes correlation state after the round trip completes.
func (r *RedisTokenRepository) Delete(ctx context.Context, requestID string) error {
	return r.client.Del(ctx, r.key(requestID)).Err()
}
