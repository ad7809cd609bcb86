package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-eventsourcing/eventsourcing/version"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseConfig()
		require.NoError(t, err)

		assert.Equal(t, storeMemory, cfg.Store)
		assert.Equal(t, "dogs", cfg.Namespace)
		assert.Equal(t, "dogschool.db", cfg.SQLitePath)
		assert.True(t, cfg.Snapshots.Enabled)
		assert.Equal(t, version.Version(10), cfg.Snapshots.Every)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_STORE", "sqlite")
		t.Setenv("DOGSCHOOL_SQLITE_PATH", "/tmp/school.db")
		t.Setenv("DOGSCHOOL_NAMESPACE", "puppies")
		t.Setenv("DOGSCHOOL_SNAPSHOTS_EVERY", "5")

		cfg, err := parseConfig()
		require.NoError(t, err)

		assert.Equal(t, storeSQLite, cfg.Store)
		assert.Equal(t, "/tmp/school.db", cfg.SQLitePath)
		assert.Equal(t, "puppies", cfg.Namespace)
		assert.Equal(t, version.Version(5), cfg.Snapshots.Every)
	})

	t.Run("snapshot frequency out of range", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_SNAPSHOTS_EVERY", "4294967296")

		_, err := parseConfig()
		assert.Error(t, err)
	})

	t.Run("postgres requires a database url", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_STORE", "postgres")

		_, err := parseConfig()
		assert.Error(t, err)
	})

	t.Run("firestore requires a project", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_STORE", "firestore")

		_, err := parseConfig()
		assert.Error(t, err)
	})

	t.Run("unsupported store", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_STORE", "cassandra")

		_, err := parseConfig()
		assert.Error(t, err)
	})

	t.Run("mongodb", func(t *testing.T) {
		t.Setenv("DOGSCHOOL_STORE", "mongodb")

		_, err := parseConfig()
		require.Error(t, err)

		t.Setenv("DOGSCHOOL_MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0")

		cfg, err := parseConfig()
		require.NoError(t, err)
		assert.Equal(t, "dogschool", cfg.MongoDBDatabase)
	})
}
