package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	envAppEnv          = "APP_ENV"
	envBackendURL      = "BACKEND_URL"
	envBridgeSecret    = "BRIDGE_TOKEN_SECRET"
	envAssertionSecret = "SERVICE_ASSERTION_SECRET"
	envAllowedHosts    = "ALLOWED_REDIRECT_HOSTS"
	envRedisPassword   = "REDIS_PASSWORD"
)

// loadFromEnv overrides file values with environment variables. Secrets are
// expected to arrive this way in deployed environments.
func (c *Config) loadFromEnv() {
	if v := os.Getenv(envAppEnv); v != "" {
		c.Env = v
	}
	if v := os.Getenv(envBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(envBridgeSecret); v != "" {
		c.Bridge.Secret = v
	}
	if v := os.Getenv(envAssertionSecret); v != "" {
		c.Assertion.Secret = v
	}
	if v := os.Getenv(envAllowedHosts); v != "" {
		c.Bridge.AllowedHosts = splitList(v)
	}

	for i := range c.Providers {
		provider := &c.Providers[i]

		if provider.OIDC != nil {
			prefix := envPrefix(provider.ID)
			if v := os.Getenv(fmt.Sprintf("%s_CLIENT_ID", prefix)); v != "" {
				provider.OIDC.ClientID = v
			}
			if v := os.Getenv(fmt.Sprintf("%s_CLIENT_SECRET", prefix)); v != "" {
				provider.OIDC.ClientSecret = v
			}
		}
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if v := os.Getenv(envRedisPassword); v != "" {
			c.Cache.Redis.Password = v
		}
	}
}

func envPrefix(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
