package storage

import (
	"context"
	"fmt"

	"gatekeeper/internal/models"
)

// Factory creates storage instances from configuration.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider. Supported providers:
//   - memory: process-local, for development and tests
//   - postgres: PostgreSQL via pgx
//   - sqlite: SQLite via the pure-Go modernc driver
func (f *Factory) Create(ctx context.Context, config models.StorageConfig) (Storage, error) {
	storageConfig := Config{
		Type:             config.Type,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(), nil
	case models.StorageTypePostgres:
		s, err := NewPostgresStorage(ctx, storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.StorageTypeSQLite:
		s, err := NewSQLiteStorage(ctx, storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite}
}
