package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/go-eventsourcing/eventsourcing/version"
)

const (
	storeMemory    = "memory"
	storePostgres  = "postgres"
	storeSQLite    = "sqlite"
	storeFirestore = "firestore"
	storeMongoDB   = "mongodb"
)

type config struct {
	Store            string `default:"memory" required:"true"`
	DatabaseURL      string `split_words:"true"`
	SQLitePath       string `envconfig:"sqlite_path" default:"dogschool.db"`
	FirestoreProject string `split_words:"true"`
	MongoDBURI       string `envconfig:"mongodb_uri"`
	MongoDBDatabase  string `envconfig:"mongodb_database" default:"dogschool"`
	Namespace        string `default:"dogs"`
	LogLevel         string `split_words:"true" default:"info"`
	Instrumentation  bool   `default:"false"`
	Snapshots        struct {
		Enabled bool            `default:"true"`
		Every   version.Version `default:"10"`
	}
}

func parseConfig() (*config, error) {
	var cfg config

	if err := envconfig.Process("dogschool", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse from env, %w", err)
	}

	switch cfg.Store {
	case storeMemory, storeSQLite:
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DOGSCHOOL_DATABASE_URL is required with the %q store", cfg.Store)
		}
	case storeFirestore:
		if cfg.FirestoreProject == "" {
			return nil, fmt.Errorf("config: DOGSCHOOL_FIRESTORE_PROJECT is required with the %q store", cfg.Store)
		}
	case storeMongoDB:
		if cfg.MongoDBURI == "" {
			return nil, fmt.Errorf("config: DOGSCHOOL_MONGODB_URI is required with the %q store", cfg.Store)
		}
	default:
		return nil, fmt.Errorf("config: unsupported store %q", cfg.Store)
	}

	return &cfg, nil
}
