package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/julianparra1/villavix/internal/config"
)

var ErrNoCredentials = errors.New("FIREBASE_ADMIN_JSON is not set")

var newFirestoreFn = firestore.NewClientWithDatabase

// ConnectFirestore opens a client on the named database using the service-account blob.
func ConnectFirestore(cfg config.Config) (*firestore.Client, error) {
	if cfg.FirebaseAdminJSON == "" {
		return nil, ErrNoCredentials
	}
	projectID, err := ProjectID(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return newFirestoreFn(ctx, projectID, cfg.FirestoreDatabase, ClientOptions(cfg)...)
}

// ClientOptions returns the Google API options shared by the Firestore and Storage clients.
func ClientOptions(cfg config.Config) []option.ClientOption {
	if cfg.FirebaseAdminJSON == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseAdminJSON))}
}

// ProjectID prefers the explicit setting and falls back to the service account's project_id.
func ProjectID(cfg config.Config) (string, error) {
	if cfg.FirebaseProjectID != "" {
		return cfg.FirebaseProjectID, nil
	}
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(cfg.FirebaseAdminJSON), &sa); err != nil {
		return "", fmt.Errorf("parse service account: %w", err)
	}
	if sa.ProjectID == "" {
		return "", errors.New("service account has no project_id")
	}
	return sa.ProjectID, nil
}
