package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Development defaults. Validate rejects them when APP_ENV=production.
const (
	DevBridgeSecret    = "dev-insecure-bridge-token-secret-change-me"
	DevAssertionSecret = "dev-insecure-service-assertion-secret-change-me"
	DevBackendURL      = "http://localhost:8000"
)

type Config struct {
	Env       string           `yaml:"env"`
	Server    ServerConfig     `yaml:"server"`
	Bridge    BridgeConfig     `yaml:"bridge"`
	Backend   BackendConfig    `yaml:"backend"`
	Assertion AssertionConfig  `yaml:"assertion"`
	Sync      SyncConfig       `yaml:"sync"`
	Cache     CacheConfig      `yaml:"cache"`
	Providers []ProviderConfig `yaml:"providers"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	CookieName     string        `yaml:"cookie_name"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	CookieSameSite string        `yaml:"cookie_same_site"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	LandingPath    string        `yaml:"landing_path"`
	ErrorPath      string        `yaml:"error_path"`
}

type BridgeConfig struct {
	Secret          string           `yaml:"secret"`
	TokenTTL        time.Duration    `yaml:"token_ttl"`
	CallbackPath    string           `yaml:"callback_path"`
	SingleUse       *bool            `yaml:"single_use"`
	AllowedHosts    []string         `yaml:"allowed_hosts"`
	PreviewPatterns []PreviewPattern `yaml:"preview_patterns"`
}

// PreviewPattern matches preview-deployment hostnames. Both fields must match.
type PreviewPattern struct {
	Suffix   string `yaml:"suffix"`
	Contains string `yaml:"contains"`
}

type BackendConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	ProxyPrefix  string        `yaml:"proxy_prefix"`
	SyncPath     string        `yaml:"sync_path"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type AssertionConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

type SyncConfig struct {
	MarkerCookie string        `yaml:"marker_cookie"`
	MarkerTTL    time.Duration `yaml:"marker_ttl"`
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type ProviderConfig struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"`
	OIDC          *OIDCConfig       `yaml:"oidc,omitempty"`
	SAML          *SAMLConfig       `yaml:"saml,omitempty"`
	ClaimMappings map[string]string `yaml:"claim_mappings"`
}

type OIDCConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	HD           string   `yaml:"hd,omitempty"`
}

type SAMLConfig struct {
	IDPMetadataURL  string `yaml:"idp_metadata_url,omitempty"`
	IDPMetadataXML  string `yaml:"idp_metadata_xml,omitempty"`
	SPEntityID      string `yaml:"sp_entity_id"`
	ACSURL          string `yaml:"acs_url"`
	CertificatePath string `yaml:"certificate_path"`
	PrivateKeyPath  string `yaml:"private_key_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the optional YAML file at path, applies defaults and then
// environment overrides. An empty path or a missing file yields a
// configuration built from defaults and the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.loadFromEnv()
	cfg.setDefaults()

	return &cfg, nil
}

// IsProduction reports whether strict secret checks apply.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// SingleUseTokens reports whether bridge tokens are consumed on first decode.
func (c *Config) SingleUseTokens() bool {
	return c.Bridge.SingleUse == nil || *c.Bridge.SingleUse
}

func (c *Config) setDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "bridge_session"
	}
	if c.Server.CookieSameSite == "" {
		c.Server.CookieSameSite = "lax"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 30 * 24 * time.Hour
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.LandingPath == "" {
		c.Server.LandingPath = "/"
	}
	if c.Server.ErrorPath == "" {
		c.Server.ErrorPath = "/auth/error"
	}

	if c.Bridge.Secret == "" {
		c.Bridge.Secret = DevBridgeSecret
	}
	if c.Bridge.TokenTTL == 0 {
		c.Bridge.TokenTTL = time.Minute
	}
	if c.Bridge.CallbackPath == "" {
		c.Bridge.CallbackPath = "/auth/bridge/callback"
	}
	if len(c.Bridge.AllowedHosts) == 0 {
		c.Bridge.AllowedHosts = []string{"localhost", "127.0.0.1"}
	}

	if c.Backend.URL == "" {
		c.Backend.URL = DevBackendURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Backend.ProxyPrefix == "" {
		c.Backend.ProxyPrefix = "/api/backend/"
	}
	if !strings.HasSuffix(c.Backend.ProxyPrefix, "/") {
		c.Backend.ProxyPrefix += "/"
	}
	if c.Backend.SyncPath == "" {
		c.Backend.SyncPath = "/api/users/sync"
	}
	if c.Backend.MaxBodyBytes == 0 {
		c.Backend.MaxBodyBytes = 50 << 20
	}

	if c.Assertion.Secret == "" {
		c.Assertion.Secret = DevAssertionSecret
	}
	if c.Assertion.Issuer == "" {
		c.Assertion.Issuer = "edge-bridge"
	}
	if c.Assertion.TTL == 0 {
		c.Assertion.TTL = 5 * time.Minute
	}

	if c.Sync.MarkerCookie == "" {
		c.Sync.MarkerCookie = "backend_user_synced"
	}
	if c.Sync.MarkerTTL == 0 {
		c.Sync.MarkerTTL = 24 * time.Hour
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	for i := range c.Providers {
		if len(c.Providers[i].ClaimMappings) == 0 {
			c.Providers[i].ClaimMappings = defaultClaimMappings(c.Providers[i].Type)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func defaultClaimMappings(providerType string) map[string]string {
	if providerType == "saml" {
		return map[string]string{
			"user_id": "name_id",
			"email":   "email",
			"name":    "displayName",
		}
	}
	return map[string]string{
		"user_id":    "sub",
		"email":      "email",
		"name":       "name",
		"avatar_url": "picture",
	}
}
