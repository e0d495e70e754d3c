// Package firestore is the Cloud Firestore record store backend. Documents
// use the camelCase field names of the JSON API so that data written by
// other clients of the same project reads back unchanged.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"trading-journal/config"
	"trading-journal/internal/logging"
)

// NewClient initializes a Firestore client through the Firebase Admin SDK.
// Inline credentials win over a credentials file; with neither, application
// default credentials are used.
func NewClient(ctx context.Context, cfg config.FirebaseConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsPath != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	logging.WithComponent("firestore").Info("Firestore client initialized", "project_id", cfg.ProjectID)
	return client, nil
}
