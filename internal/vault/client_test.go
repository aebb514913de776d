package vault

import (
	"context"
	"testing"

	"sniper-trading-bot/config"
)

func newDisabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestDisabledClientStoresInMemory(t *testing.T) {
	client := newDisabledClient(t)
	ctx := context.Background()

	creds := Credentials{APIKey: "key", SecretKey: "secret", Exchange: "bybit", IsTestnet: false}
	if err := client.StoreCredentials(ctx, creds); err != nil {
		t.Fatal(err)
	}

	got, err := client.GetCredentials(ctx, "bybit", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "key" || got.SecretKey != "secret" {
		t.Errorf("credentials = %+v", got)
	}

	if _, err := client.GetCredentials(ctx, "bybit", true); err == nil {
		t.Error("testnet credentials found but only mainnet stored")
	}
	if _, err := client.GetCredentials(ctx, "mexc", false); err == nil {
		t.Error("unknown exchange credentials found")
	}
}

func TestDisabledClientDeleteAndClear(t *testing.T) {
	client := newDisabledClient(t)
	ctx := context.Background()

	client.StoreCredentials(ctx, Credentials{APIKey: "k", Exchange: "bybit"})
	if err := client.DeleteCredentials(ctx, "bybit", false); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetCredentials(ctx, "bybit", false); err == nil {
		t.Error("deleted credentials still readable")
	}

	client.StoreCredentials(ctx, Credentials{APIKey: "k", Exchange: "mexc"})
	client.ClearCache()
	if _, err := client.GetCredentials(ctx, "mexc", false); err == nil {
		t.Error("cleared credentials still readable")
	}
}

func TestDisabledClientHealth(t *testing.T) {
	client := newDisabledClient(t)
	if client.IsEnabled() {
		t.Error("client reports enabled")
	}
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("disabled client health = %v, want nil", err)
	}
}

func TestSecretPaths(t *testing.T) {
	client := &Client{config: config.VaultConfig{MountPath: "secret", SecretPath: "sniper-bot/exchange-keys"}}

	if got := client.secretPath("bybit", false); got != "secret/data/sniper-bot/exchange-keys/bybit_mainnet" {
		t.Errorf("secret path = %q", got)
	}
	if got := client.secretPath("bybit", true); got != "secret/data/sniper-bot/exchange-keys/bybit_testnet" {
		t.Errorf("testnet secret path = %q", got)
	}
	if got := client.metadataPath("mexc", false); got != "secret/metadata/sniper-bot/exchange-keys/mexc_mainnet" {
		t.Errorf("metadata path = %q", got)
	}
}
