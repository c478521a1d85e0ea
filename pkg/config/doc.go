// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CEDAR_HOST="0.0.0.0"
//	CEDAR_PORT="8080"
//	CEDAR_HEALTH_PORT="9090"
//	CEDAR_READ_TIMEOUT="15s"
//	CEDAR_WRITE_TIMEOUT="15s"
//	CEDAR_SESSION_TTL="5m"
//
// Tree settings:
//
//	CEDAR_TREE_DIR="/etc/cedar/trees"
//	CEDAR_TREE_WATCH="true"
//
// SAML2 federation settings:
//
//	CEDAR_SAML_ENTITY_ID="https://cedar.example.com"
//	CEDAR_SAML_CERT_FILE="/etc/cedar/tls/cert.pem"
//	CEDAR_SAML_KEY_FILE="/etc/cedar/tls/key.pem"
//	CEDAR_SAML_METADATA_DIR="/etc/cedar/metadata"
//	CEDAR_SAML_PROXY_ENABLED="true"
//	CEDAR_SAML_CORRELATION_TTL="5m"
//
// Push authentication settings:
//
//	CEDAR_PUSH_TIMEOUT="2m"
//	CEDAR_PUSH_POLL_RATE="3"
//	CEDAR_PUSH_POLL_BURST="5"
//
// Redis settings:
//
//	CEDAR_REDIS_URL="redis://localhost:6379"
//	CEDAR_REDIS_POOL_SIZE="10"
//
// Observability settings:
//
//	CEDAR_LOG_LEVEL="info"  # debug, info, warn, error
//	CEDAR_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
package config
