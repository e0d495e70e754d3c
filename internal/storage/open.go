// Package storage opens the record store backend selected in configuration.
package storage

import (
	"context"
	"fmt"

	"trading-journal/config"
	"trading-journal/internal/database"
	"trading-journal/internal/firestore"
	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Open connects the configured backend. Postgres migrations run before the
// store is returned.
func Open(ctx context.Context, cfg *config.Config) (records.Store, error) {
	switch cfg.StorageConfig.Backend {
	case BackendPostgres:
		db, err := database.NewDB(ctx, cfg.DatabaseConfig)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return database.NewRepository(db), nil

	case BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirebaseConfig)
		if err != nil {
			return nil, err
		}
		return firestore.NewStore(client), nil

	case BackendMemory, "":
		logging.Warn("Using the in-memory record store; data is lost on restart")
		return records.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageConfig.Backend)
	}
}
