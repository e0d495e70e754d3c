// Package vault reads the service's secrets (JWT signing key, database and
// Redis passwords, Firebase credentials) from a KV v2 engine at startup.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"trading-journal/config"
)

// Secret keys understood by config.ApplySecrets.
const (
	KeyJWTSecret               = "jwt_secret"
	KeyDBPassword              = "db_password"
	KeyRedisPassword           = "redis_password"
	KeyFirebaseCredentialsJSON = "firebase_credentials_json"
)

// Client wraps the HashiCorp Vault client. When Vault is disabled it keeps
// secrets in a local map so development setups behave the same way.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	local  map[string]string
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			local:  make(map[string]string),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		local:  make(map[string]string),
	}, nil
}

// LoadSecrets returns every string value stored at the service secret path.
// A missing secret yields an empty map, not an error.
func (c *Client) LoadSecrets(ctx context.Context) (map[string]string, error) {
	if !c.config.Enabled {
		c.mu.RLock()
		defer c.mu.RUnlock()
		out := make(map[string]string, len(c.local))
		for k, v := range c.local {
			out[k] = v
		}
		return out, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return map[string]string{}, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", c.dataPath())
	}

	out := make(map[string]string, len(data))
	for k := range data {
		if v := getString(data, k); v != "" {
			out[k] = v
		}
	}
	return out, nil
}

// StoreSecrets writes values to the service secret path, replacing the
// previous version.
func (c *Client) StoreSecrets(ctx context.Context, values map[string]string) error {
	if !c.config.Enabled {
		c.mu.Lock()
		for k, v := range values {
			c.local[k] = v
		}
		c.mu.Unlock()
		return nil
	}

	data := make(map[string]interface{}, len(values))
	for k, v := range values {
		data[k] = v
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), map[string]interface{}{"data": data}); err != nil {
		return fmt.Errorf("failed to store secrets in vault: %w", err)
	}
	return nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return ""
}
