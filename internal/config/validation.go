package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const minSecretLength = 32

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateBridge(); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}

	if err := c.validateBackend(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.validateSecrets(); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateProviders(); err != nil {
		return fmt.Errorf("providers config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if _, err := parseAbsoluteURL(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	sameSite := strings.ToLower(c.Server.CookieSameSite)
	if sameSite != "lax" && sameSite != "strict" {
		return fmt.Errorf("invalid cookie_same_site: %s (must be lax or strict)", c.Server.CookieSameSite)
	}

	if c.Server.SessionTTL < time.Minute {
		return fmt.Errorf("session_ttl must be at least 1 minute")
	}

	if !strings.HasPrefix(c.Server.LandingPath, "/") || !strings.HasPrefix(c.Server.ErrorPath, "/") {
		return fmt.Errorf("landing_path and error_path must be absolute paths")
	}

	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.TokenTTL <= 0 || c.Bridge.TokenTTL > 10*time.Minute {
		return fmt.Errorf("token_ttl must be between 0 and 10m, got %s", c.Bridge.TokenTTL)
	}

	if !strings.HasPrefix(c.Bridge.CallbackPath, "/") {
		return fmt.Errorf("callback_path must start with /")
	}

	if len(c.Bridge.AllowedHosts) == 0 && len(c.Bridge.PreviewPatterns) == 0 {
		return fmt.Errorf("at least one allowed host or preview pattern is required")
	}

	for i, host := range c.Bridge.AllowedHosts {
		if host == "" || strings.ContainsAny(host, "/:*") {
			return fmt.Errorf("allowed_hosts[%d]: %q must be a bare hostname", i, host)
		}
	}

	for i, p := range c.Bridge.PreviewPatterns {
		if !strings.HasPrefix(p.Suffix, ".") {
			return fmt.Errorf("preview_patterns[%d]: suffix %q must start with a dot", i, p.Suffix)
		}
		if p.Contains == "" {
			return fmt.Errorf("preview_patterns[%d]: contains is required, a bare suffix would accept any subdomain", i)
		}
	}

	return nil
}

func (c *Config) validateBackend() error {
	if _, err := parseAbsoluteURL(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !strings.HasPrefix(c.Backend.ProxyPrefix, "/") {
		return fmt.Errorf("proxy_prefix must start with /")
	}

	if !strings.HasPrefix(c.Backend.SyncPath, "/") {
		return fmt.Errorf("sync_path must start with /")
	}

	if c.Backend.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}

	return nil
}

func (c *Config) validateSecrets() error {
	if c.Bridge.Secret == "" || c.Assertion.Secret == "" {
		return fmt.Errorf("bridge and assertion secrets are required")
	}

	if c.Bridge.Secret == c.Assertion.Secret {
		return fmt.Errorf("bridge and assertion secrets must differ")
	}

	if c.Assertion.TTL <= 0 || c.Assertion.TTL > 15*time.Minute {
		return fmt.Errorf("assertion ttl must be between 0 and 15m, got %s", c.Assertion.TTL)
	}

	if !c.IsProduction() {
		return nil
	}

	if c.Bridge.Secret == DevBridgeSecret || c.Assertion.Secret == DevAssertionSecret {
		return fmt.Errorf("development secrets are not allowed in production")
	}

	if len(c.Bridge.Secret) < minSecretLength || len(c.Assertion.Secret) < minSecretLength {
		return fmt.Errorf("secrets must be at least %d bytes in production", minSecretLength)
	}

	if !c.Server.CookieSecure {
		return fmt.Errorf("cookie_secure must be enabled in production")
	}

	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateProviders() error {
	ids := make(map[string]bool)
	for i, provider := range c.Providers {
		if provider.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}

		if !validProviderID(provider.ID) {
			return fmt.Errorf("provider %d: id %q may only contain letters, digits, - and _", i, provider.ID)
		}

		if ids[provider.ID] {
			return fmt.Errorf("provider %d: duplicate id: %s", i, provider.ID)
		}
		ids[provider.ID] = true

		if provider.Name == "" {
			return fmt.Errorf("provider %s: name is required", provider.ID)
		}

		switch provider.Type {
		case "oidc":
			if err := validateOIDCConfig(provider.ID, provider.OIDC); err != nil {
				return err
			}
		case "saml":
			if err := validateSAMLConfig(provider.ID, provider.SAML); err != nil {
				return err
			}
		default:
			return fmt.Errorf("provider %s: invalid type: %s (must be oidc or saml)", provider.ID, provider.Type)
		}

		if provider.ClaimMappings["user_id"] == "" {
			return fmt.Errorf("provider %s: claim_mappings.user_id is required", provider.ID)
		}
	}

	return nil
}

func validateOIDCConfig(providerID string, cfg *OIDCConfig) error {
	if cfg == nil {
		return fmt.Errorf("provider %s: oidc config is required", providerID)
	}

	if _, err := parseAbsoluteURL(cfg.Issuer); err != nil {
		return fmt.Errorf("provider %s: invalid issuer URL: %w", providerID, err)
	}

	if cfg.ClientID == "" {
		return fmt.Errorf("provider %s: client_id is required", providerID)
	}

	if cfg.ClientSecret == "" {
		return fmt.Errorf("provider %s: client_secret is required", providerID)
	}

	hasOpenID := false
	for _, scope := range cfg.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("provider %s: 'openid' scope is required", providerID)
	}

	return nil
}

func validateSAMLConfig(providerID string, cfg *SAMLConfig) error {
	if cfg == nil {
		return fmt.Errorf("provider %s: saml config is required", providerID)
	}

	if cfg.IDPMetadataURL == "" && cfg.IDPMetadataXML == "" {
		return fmt.Errorf("provider %s: either idp_metadata_url or idp_metadata_xml is required", providerID)
	}

	if cfg.IDPMetadataURL != "" {
		if _, err := parseAbsoluteURL(cfg.IDPMetadataURL); err != nil {
			return fmt.Errorf("provider %s: invalid idp_metadata_url: %w", providerID, err)
		}
	}

	if cfg.SPEntityID == "" {
		return fmt.Errorf("provider %s: sp_entity_id is required", providerID)
	}

	if _, err := parseAbsoluteURL(cfg.ACSURL); err != nil {
		return fmt.Errorf("provider %s: invalid acs_url: %w", providerID, err)
	}

	if cfg.CertificatePath == "" || cfg.PrivateKeyPath == "" {
		return fmt.Errorf("provider %s: certificate_path and private_key_path are required", providerID)
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	return u, nil
}

func validProviderID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
