package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zallek/galaxy/internal/domain"
)

const registryFile = "analyses.db"

// StoreFactory keeps one database file per analysis under DataDir.
type StoreFactory struct {
	DataDir string
}

func (f StoreFactory) OpenStore(ctx context.Context, analysisID uint) (domain.EntityStore, error) {
	if err := os.MkdirAll(f.DataDir, 0o755); err != nil {
		return nil, storeErr("create data dir", err)
	}
	store, err := OpenEntityStore(ctx, f.StorePath(analysisID))
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (f StoreFactory) StorePath(analysisID uint) string {
	return filepath.Join(f.DataDir, fmt.Sprintf("analysis-%d.db", analysisID))
}

func (f StoreFactory) RegistryPath() string {
	return filepath.Join(f.DataDir, registryFile)
}
