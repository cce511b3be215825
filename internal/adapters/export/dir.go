package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zallek/galaxy/internal/domain"
)

var localExportFiles = map[domain.ExportKind]string{
	domain.ExportLinks:       "links.csv",
	domain.ExportPageDetails: "pages.csv",
}

// DirResolver serves exports already downloaded into a directory. The
// analysis' SourceDir wins over Dir.
type DirResolver struct {
	Dir string
}

func (r DirResolver) ResolveExport(_ context.Context, analysis domain.Analysis, kind domain.ExportKind) (string, error) {
	name, ok := localExportFiles[kind]
	if !ok {
		return "", fmt.Errorf("unsupported export kind %q", kind)
	}
	dir := analysis.SourceDir
	if dir == "" {
		dir = r.Dir
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrExportUnavailable)
		}
		return "", err
	}
	return path, nil
}

// SourceResolver dispatches on the analysis source.
type SourceResolver struct {
	Botify domain.ExportResolver
	Local  domain.ExportResolver
}

func (r SourceResolver) ResolveExport(ctx context.Context, analysis domain.Analysis, kind domain.ExportKind) (string, error) {
	if analysis.Source == domain.SourceLocal {
		return r.Local.ResolveExport(ctx, analysis, kind)
	}
	if r.Botify == nil {
		return "", fmt.Errorf("analysis %d: no botify resolver configured", analysis.ID)
	}
	return r.Botify.ResolveExport(ctx, analysis, kind)
}
