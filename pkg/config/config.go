package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cedarauth/cedar/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication tree configuration
	Trees TreeConfig

	// SAML2 federation configuration
	SAML SAMLConfig

	// Push authentication configuration
	Push PushConfig

	// Redis configuration (durable correlation storage, sessions)
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Authenticate-session lifetime: how long a suspended tree evaluation
	// waits for the client's next callback submission.
	SessionTTL time.Duration
}

// TreeConfig holds authentication tree definitions configuration
type TreeConfig struct {
	// Directory containing YAML tree definitions
	Directory string

	// Watch reloads tree definitions when files change
	Watch bool
}

// SAMLConfig holds SAML2 federation configuration
type SAMLConfig struct {
	// EntityID is this deployment's issuer entity ID
	EntityID string

	// PEM files for message signing
	CertificateFile string
	PrivateKeyFile  string

	// Directory of upstream IDP metadata documents
	MetadataDirectory string

	// Default upstream IDP when the request scopes none
	DefaultUpstreamIDP string

	ProxyEnabled bool
	AlwaysProxy  bool

	// Correlation state lifetime for in-flight proxied round trips
	CorrelationTTL time.Duration

	// Encryption key cache
	KeyCacheSize int
	KeyCacheTTL  time.Duration
}

// PushConfig holds push authentication configuration
type PushConfig struct {
	// Message timeout before a pending push is treated as expired
	Timeout time.Duration

	// Poll rate limiting: sustained polls per second and burst allowance
	// before a poller is flagged as spamming
	PollRate  float64
	PollBurst int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Trees:         loadTreeConfig(),
		SAML:          loadSAMLConfig(),
		Push:          loadPushConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CEDAR_HOST", "0.0.0.0"),
		Port:            getEnv("CEDAR_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CEDAR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CEDAR_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CEDAR_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CEDAR_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CEDAR_HEALTH_PORT", "9090"),
		SessionTTL:      getEnvDuration("CEDAR_SESSION_TTL", 5*time.Minute),
	}
}

// loadTreeConfig loads tree definitions configuration from environment
func loadTreeConfig() TreeConfig {
	return TreeConfig{
		Directory: getEnv("CEDAR_TREE_DIR", "/etc/cedar/trees"),
		Watch:     getEnvBool("CEDAR_TREE_WATCH", true),
	}
}

// loadSAMLConfig loads federation configuration from environment
func loadSAMLConfig() SAMLConfig {
	return SAMLConfig{
		EntityID:           getEnv("CEDAR_SAML_ENTITY_ID", ""),
		CertificateFile:    getEnv("CEDAR_SAML_CERT_FILE", ""),
		PrivateKeyFile:     getEnv("CEDAR_SAML_KEY_FILE", ""),
		MetadataDirectory:  getEnv("CEDAR_SAML_METADATA_DIR", ""),
		DefaultUpstreamIDP: getEnv("CEDAR_SAML_DEFAULT_UPSTREAM", ""),
		ProxyEnabled:       getEnvBool("CEDAR_SAML_PROXY_ENABLED", false),
		AlwaysProxy:        getEnvBool("CEDAR_SAML_ALWAYS_PROXY", false),
		CorrelationTTL:     getEnvDuration("CEDAR_SAML_CORRELATION_TTL", 5*time.Minute),
		KeyCacheSize:       getEnvInt("CEDAR_SAML_KEY_CACHE_SIZE", 128),
		KeyCacheTTL:        getEnvDuration("CEDAR_SAML_KEY_CACHE_TTL", time.Hour),
	}
}

// loadPushConfig loads push authentication configuration from environment
func loadPushConfig() PushConfig {
	return PushConfig{
		Timeout:   getEnvDuration("CEDAR_PUSH_TIMEOUT", 2*time.Minute),
		PollRate:  getEnvFloat("CEDAR_PUSH_POLL_RATE", 3),
		PollBurst: getEnvInt("CEDAR_PUSH_POLL_BURST", 5),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("CEDAR_REDIS_URL", ""),
		Password:   getEnv("CEDAR_REDIS_PASSWORD", ""),
		DB:         getEnvInt("CEDAR_REDIS_DB", 0),
		MaxRetries: getEnvInt("CEDAR_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("CEDAR_REDIS_POOL_SIZE", 10),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("CEDAR_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CEDAR_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Trees.Directory == "" {
		return fmt.Errorf("tree directory is required")
	}

	// Validate federation config when proxying is enabled
	if c.SAML.ProxyEnabled {
		if c.SAML.EntityID == "" {
			return fmt.Errorf("SAML entity ID is required when proxying is enabled")
		}
		if c.SAML.MetadataDirectory == "" {
			return fmt.Errorf("SAML metadata directory is required when proxying is enabled")
		}
		if c.SAML.CorrelationTTL <= 0 {
			return fmt.Errorf("SAML correlation TTL must be positive")
		}
	}

	if c.Push.PollRate <= 0 {
		return fmt.Errorf("push poll rate must be positive")
	}
	if c.Push.PollBurst <= 0 {
		return fmt.Errorf("push poll burst must be positive")
	}
	if c.Push.Timeout <= 0 {
		return fmt.Errorf("push timeout must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
