package vault

import (
	"context"
	"fmt"
	"sync"

	"sniper-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// Credentials is an exchange API credential pair stored in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Exchange  string `json:"exchange"`
	IsTestnet bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client. With Vault disabled it degrades
// to an in-memory store so local development works without a Vault server.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]*Credentials // exchange_network -> credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*Credentials),
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
		cache:  make(map[string]*Credentials),
	}, nil
}

// StoreCredentials stores exchange credentials in Vault
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[c.cacheKey(creds.Exchange, creds.IsTestnet)] = &creds
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(creds.Exchange, creds.IsTestnet)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"exchange":   creds.Exchange,
			"is_testnet": creds.IsTestnet,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[c.cacheKey(creds.Exchange, creds.IsTestnet)] = &creds
	c.mu.Unlock()

	return nil
}

// GetCredentials retrieves exchange credentials from Vault
func (c *Client) GetCredentials(ctx context.Context, exchange string, isTestnet bool) (*Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[c.cacheKey(exchange, isTestnet)]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials not found and vault is disabled")
	}

	path := c.secretPath(exchange, isTestnet)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found for %s", exchange)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Exchange:  getString(data, "exchange"),
		IsTestnet: getBool(data, "is_testnet"),
	}

	c.mu.Lock()
	c.cache[c.cacheKey(exchange, isTestnet)] = creds
	c.mu.Unlock()

	return creds, nil
}

// DeleteCredentials deletes exchange credentials from Vault
func (c *Client) DeleteCredentials(ctx context.Context, exchange string, isTestnet bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(exchange, isTestnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(exchange, isTestnet)

	if _, err := c.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}

	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
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

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) secretPath(exchange string, isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s_%s", c.config.MountPath, c.config.SecretPath, exchange, network(isTestnet))
}

func (c *Client) metadataPath(exchange string, isTestnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s_%s", c.config.MountPath, c.config.SecretPath, exchange, network(isTestnet))
}

func (c *Client) cacheKey(exchange string, isTestnet bool) string {
	return fmt.Sprintf("%s_%s", exchange, network(isTestnet))
}

func network(isTestnet bool) string {
	if isTestnet {
		return "testnet"
	}
	return "mainnet"
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
		if s, ok := val.(string); ok {
			return s == "true"
		}
	}
	return false
}
