// Package vault retrieves exchange API credentials for the Market-Data
// Client's authenticated endpoints (OI/funding require signed requests).
// Narrowed from a per-user multi-tenant credential store down to one
// credential set per
// bot version.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Credentials is the exchange API key pair for one bot version.
type Credentials struct {
	APIKey    string
	SecretKey string
	IsTestnet bool
}

// Config holds the Vault connection fields actually used here.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	TLSEnabled bool
	CACert     string
}

// Client wraps the HashiCorp Vault client, falling back to an in-memory
// cache when Vault is disabled (development/testing).
type Client struct {
	client  *api.Client
	enabled bool

	mu    sync.RWMutex
	cache map[string]Credentials // bot_version -> Credentials
}

// NewClient creates a Vault client, or a local-cache-only stub if Vault is
// disabled in config.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cache: make(map[string]Credentials)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("vault: configuring tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault: creating client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, enabled: true, cache: make(map[string]Credentials)}, nil
}

func (c *Client) secretPath(botVersion string) string {
	return fmt.Sprintf("secret/data/cryptosignals/%s/exchange", botVersion)
}

// StoreCredentials writes the exchange credentials for a bot version.
func (c *Client) StoreCredentials(ctx context.Context, botVersion string, creds Credentials) error {
	if !c.enabled {
		c.mu.Lock()
		c.cache[botVersion] = creds
		c.mu.Unlock()
		return nil
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(botVersion), map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"is_testnet": creds.IsTestnet,
		},
	})
	if err != nil {
		return fmt.Errorf("vault: writing credentials for %s: %w", botVersion, err)
	}
	return nil
}

// GetCredentials retrieves the exchange credentials for a bot version.
func (c *Client) GetCredentials(ctx context.Context, botVersion string) (Credentials, error) {
	if !c.enabled {
		c.mu.RLock()
		defer c.mu.RUnlock()
		creds, ok := c.cache[botVersion]
		if !ok {
			return Credentials{}, fmt.Errorf("vault: no credentials cached for %s", botVersion)
		}
		return creds, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(botVersion))
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: reading credentials for %s: %w", botVersion, err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return Credentials{}, fmt.Errorf("vault: no credentials found for %s", botVersion)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("vault: malformed secret for %s", botVersion)
	}

	creds := Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if v, ok := data["is_testnet"].(bool); ok {
		creds.IsTestnet = v
	}
	return creds, nil
}
