package config

import (
	"os"
	"testing"
	"time"

	"github.com/cedarauth/cedar/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "true string",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "numeric one",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "false string",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when unset",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "45s")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	if got := getEnvDuration("TEST_DURATION_NOT_SET", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}

	os.Setenv("TEST_DURATION_BAD", "not-a-duration")
	defer os.Unsetenv("TEST_DURATION_BAD")
	if got := getEnvDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

// TestGetEnvFloat tests the getEnvFloat helper function
func TestGetEnvFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "2.5")
	defer os.Unsetenv("TEST_FLOAT")

	if got := getEnvFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvFloat() = %v, want 2.5", got)
	}
	if got := getEnvFloat("TEST_FLOAT_NOT_SET", 3); got != 3 {
		t.Errorf("getEnvFloat() default = %v, want 3", got)
	}
}

// TestLoadConfigDefaults tests loading with no environment set
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("default health port = %v, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Trees.Directory != "/etc/cedar/trees" {
		t.Errorf("default tree dir = %v", cfg.Trees.Directory)
	}
	if !cfg.Trees.Watch {
		t.Error("tree watching should default to enabled")
	}
	if cfg.Push.PollRate != 3 || cfg.Push.PollBurst != 5 {
		t.Errorf("push poll defaults = %v/%v, want 3/5", cfg.Push.PollRate, cfg.Push.PollBurst)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("default log level = %v, want info", cfg.Observability.LogLevel)
	}
}

// TestLoadConfigFromEnvironment tests environment overrides
func TestLoadConfigFromEnvironment(t *testing.T) {
	os.Setenv("CEDAR_PORT", "8888")
	os.Setenv("CEDAR_LOG_LEVEL", "debug")
	os.Setenv("CEDAR_PUSH_POLL_RATE", "10")
	os.Setenv("CEDAR_SESSION_TTL", "90s")
	defer func() {
		os.Unsetenv("CEDAR_PORT")
		os.Unsetenv("CEDAR_LOG_LEVEL")
		os.Unsetenv("CEDAR_PUSH_POLL_RATE")
		os.Unsetenv("CEDAR_SESSION_TTL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8888" {
		t.Errorf("port = %v, want 8888", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("log level = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Push.PollRate != 10 {
		t.Errorf("poll rate = %v, want 10", cfg.Push.PollRate)
	}
	if cfg.Server.SessionTTL != 90*time.Second {
		t.Errorf("session TTL = %v, want 90s", cfg.Server.SessionTTL)
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090", SessionTTL: time.Minute},
			Trees:  TreeConfig{Directory: "/etc/cedar/trees"},
			Push:   PushConfig{Timeout: time.Minute, PollRate: 3, PollBurst: 5},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Server.HealthPort = cfg.Server.Port
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for colliding ports")
	}

	cfg = base()
	cfg.Trees.Directory = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing tree directory")
	}

	cfg = base()
	cfg.SAML.ProxyEnabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for proxy without entity ID")
	}

	cfg = base()
	cfg.Push.PollRate = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero poll rate")
	}
}
