package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffhub/internal/models"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		assert.Equal(t, []string{"memory", "json", "sqlite", "postgres", "mysql"}, factory.GetSupportedProviders())
	})

	t.Run("ValidateConfig", func(t *testing.T) {
		tests := []struct {
			name      string
			config    models.StorageConfig
			expectErr bool
		}{
			{"memory", models.StorageConfig{Type: "memory"}, false},
			{"json with path", models.StorageConfig{Type: "json", Path: "/tmp/x.json"}, false},
			{"json without path", models.StorageConfig{Type: "json"}, true},
			{"sqlite with dsn", models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: "x.db"}}, false},
			{"postgres without dsn", models.StorageConfig{Type: "postgres"}, true},
			{"mysql without dsn", models.StorageConfig{Type: "mysql"}, true},
			{"unknown", models.StorageConfig{Type: "mongo"}, true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := factory.ValidateConfig(tt.config)
				if tt.expectErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})

	t.Run("Create", func(t *testing.T) {
		dir := t.TempDir()

		for _, cfg := range []models.StorageConfig{
			{Type: "memory"},
			{Type: "json", Path: filepath.Join(dir, "data.json")},
			{Type: "sqlite", Database: models.DatabaseConfig{DSN: filepath.Join(dir, "data.db")}},
		} {
			s, err := factory.Create(cfg)
			require.NoError(t, err, cfg.Type)
			assert.NoError(t, s.Close())
		}

		_, err := factory.Create(models.StorageConfig{Type: "mongo"})
		assert.Error(t, err)

		_, err = factory.Create(models.StorageConfig{Type: "postgres"})
		assert.Error(t, err)
	})
}
