package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion                     = 1
	DefaultPath                       = "/etc/hubspace2mqtt/config.yaml"
	DefaultHTTPAddr                   = "0.0.0.0:8080"
	DefaultTopicPrefix                = "hubspace2mqtt"
	DefaultDiscoveryPrefix            = "homeassistant"
	DefaultClientID                   = "hubspace2mqtt"
	DefaultStateFile                  = "/var/lib/hubspace2mqtt/auth.json"
	DefaultPollIntervalSeconds        = 30
	DefaultAuthRefreshIntervalSeconds = 600
)

// Config is the daemon's single YAML config file.
type Config struct {
	SchemaVersion int    `yaml:"schema_version"`
	HTTPAddr      string `yaml:"http_addr"`

	MQTT     MQTTConfig     `yaml:"mqtt"`
	Hubspace HubspaceConfig `yaml:"hubspace"`
	AuthBlob *AuthBlob      `yaml:"auth_blob"`

	AuthRefreshIntervalSeconds int `yaml:"auth_refresh_interval_seconds"`
}

// MQTTConfig locates the platform broker.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	PasswordFile    string `yaml:"password_file"`
	ClientID        string `yaml:"client_id"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// HubspaceConfig locates the vendor API and credentials.
type HubspaceConfig struct {
	BaseURL             string `yaml:"base_url"`
	TokenURL            string `yaml:"token_url"`
	BootstrapFile       string `yaml:"bootstrap_file"`
	StateFile           string `yaml:"state_file"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// AuthBlob configures the optional S3 mirror of the auth state.
type AuthBlob struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
	Region        string `yaml:"region"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.Hubspace.StateFile == "" {
		cfg.Hubspace.StateFile = DefaultStateFile
	}
	if cfg.Hubspace.PollIntervalSeconds == 0 {
		cfg.Hubspace.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.AuthRefreshIntervalSeconds == 0 {
		cfg.AuthRefreshIntervalSeconds = DefaultAuthRefreshIntervalSeconds
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.Hubspace.BootstrapFile == "" {
		return fmt.Errorf("hubspace.bootstrap_file is required")
	}
	if cfg.Hubspace.PollIntervalSeconds < 5 {
		return fmt.Errorf("hubspace.poll_interval_seconds must be at least 5")
	}
	if cfg.AuthBlob != nil {
		if cfg.AuthBlob.Endpoint == "" {
			return fmt.Errorf("auth_blob.endpoint is required")
		}
		if cfg.AuthBlob.Bucket == "" {
			return fmt.Errorf("auth_blob.bucket is required")
		}
		if cfg.AuthBlob.AccessKeyFile == "" {
			return fmt.Errorf("auth_blob.access_key_file is required")
		}
		if cfg.AuthBlob.SecretKeyFile == "" {
			return fmt.Errorf("auth_blob.secret_key_file is required")
		}
	}
	return nil
}
