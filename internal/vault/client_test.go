package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/config"
)

func TestDisabledClientUsesLocalSecrets(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(context.Background()))

	got, err := c.LoadSecrets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.StoreSecrets(context.Background(), map[string]string{KeyJWTSecret: "dev-secret"}))
	got, err = c.LoadSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeyJWTSecret: "dev-secret"}, got)

	// returned map is a copy
	got[KeyJWTSecret] = "changed"
	again, _ := c.LoadSecrets(context.Background())
	assert.Equal(t, "dev-secret", again[KeyJWTSecret])
}

func fakeVault(t *testing.T, sealed bool, secret map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/secret/data/trading-journal/service":
			if r.Header.Get("X-Vault-Token") != "root" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
				return
			}
			if secret == nil {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{
					"data":     secret,
					"metadata": map[string]interface{}{"version": 3},
				},
			})
		case "/v1/sys/health":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"initialized": true,
				"sealed":      sealed,
				"standby":     false,
				"version":     "1.15.0",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func enabledConfig(addr, token string) config.VaultConfig {
	return config.VaultConfig{
		Enabled:    true,
		Address:    addr,
		Token:      token,
		MountPath:  "secret",
		SecretPath: "trading-journal/service",
	}
}

func TestLoadSecretsFromKV(t *testing.T) {
	srv := fakeVault(t, false, map[string]interface{}{
		KeyJWTSecret:     "s3cret",
		KeyDBPassword:    "pg-pass",
		"empty":          "",
		"ignored_object": map[string]interface{}{"a": 1},
	})

	c, err := NewClient(enabledConfig(srv.URL, "root"))
	require.NoError(t, err)

	got, err := c.LoadSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		KeyJWTSecret:  "s3cret",
		KeyDBPassword: "pg-pass",
	}, got)
	assert.NoError(t, c.Health(context.Background()))
}

func TestLoadSecretsMissingPath(t *testing.T) {
	srv := fakeVault(t, false, nil)
	c, err := NewClient(enabledConfig(srv.URL, "root"))
	require.NoError(t, err)

	got, err := c.LoadSecrets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadSecretsPermissionDenied(t *testing.T) {
	srv := fakeVault(t, false, map[string]interface{}{KeyJWTSecret: "x"})
	c, err := NewClient(enabledConfig(srv.URL, "wrong"))
	require.NoError(t, err)

	_, err = c.LoadSecrets(context.Background())
	assert.Error(t, err)
}

func TestHealthReportsSealed(t *testing.T) {
	srv := fakeVault(t, true, nil)
	c, err := NewClient(enabledConfig(srv.URL, "root"))
	require.NoError(t, err)

	err = c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
}
