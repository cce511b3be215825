package sqlite

import (
	"context"
	"embed"
	"io/fs"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/analysis/*.sql migrations/registry/*.sql
var migrationsFS embed.FS

const (
	analysisMigrations = "migrations/analysis"
	registryMigrations = "migrations/registry"
)

func RunMigrations(ctx context.Context, db *gorm.DB, dir string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, fsys)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return err
	}

	return nil
}
