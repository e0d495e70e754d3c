package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/config"
	"trading-journal/internal/records"
)

func TestOpenMemory(t *testing.T) {
	for _, backend := range []string{BackendMemory, ""} {
		cfg := &config.Config{StorageConfig: config.StorageConfig{Backend: backend}}
		store, err := Open(context.Background(), cfg)
		require.NoError(t, err)
		assert.IsType(t, &records.MemoryStore{}, store)
		assert.NoError(t, store.HealthCheck(context.Background()))
		assert.NoError(t, store.Close())
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := &config.Config{StorageConfig: config.StorageConfig{Backend: "mongo"}}
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
