package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/zallek/galaxy/internal/domain"
	"gorm.io/gorm"
)

type Registry struct {
	db *gorm.DB
}

func OpenRegistry(ctx context.Context, path string) (*Registry, error) {
	db, err := Open(path)
	if err != nil {
		return nil, storeErr("open registry", err)
	}
	if err := RunMigrations(ctx, db, registryMigrations); err != nil {
		return nil, storeErr("migrate registry", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Registry) Create(ctx context.Context, value domain.Analysis) (domain.Analysis, error) {
	m := toAnalysisModel(value)
	m.ID = 0
	m.Ready = false
	m.Links = nil
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Analysis{}, storeErr("create analysis", err)
	}
	return fromAnalysisModel(m), nil
}

func (r *Registry) Get(ctx context.Context, id uint) (domain.Analysis, error) {
	var m AnalysisModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Analysis{}, fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
		}
		return domain.Analysis{}, storeErr("get analysis", err)
	}
	return fromAnalysisModel(m), nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Analysis, error) {
	rows := make([]AnalysisModel, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("list analyses", err)
	}
	result := make([]domain.Analysis, 0, len(rows))
	for _, m := range rows {
		result = append(result, fromAnalysisModel(m))
	}
	return result, nil
}

func (r *Registry) MarkReady(ctx context.Context, id uint, links int64) error {
	return r.update(ctx, id, map[string]any{"ready": true, "links": links})
}

func (r *Registry) MarkNotReady(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]any{"ready": false, "links": nil})
}

func (r *Registry) update(ctx context.Context, id uint, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&AnalysisModel{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return storeErr("update analysis", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("analysis %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toAnalysisModel(a domain.Analysis) AnalysisModel {
	source := string(a.Source)
	if source == "" {
		source = string(domain.SourceBotify)
	}
	return AnalysisModel{
		ID:           a.ID,
		URL:          a.URL,
		Env:          a.Env,
		Owner:        a.Owner,
		ProjectSlug:  a.ProjectSlug,
		AnalysisSlug: a.AnalysisSlug,
		CrawledURLs:  a.CrawledURLs,
		KnownURLs:    a.KnownURLs,
		SegmentNames: a.SegmentNames,
		Source:       source,
		SourceDir:    a.SourceDir,
		Links:        a.Links,
		Ready:        a.Ready,
	}
}

func fromAnalysisModel(m AnalysisModel) domain.Analysis {
	segments := m.SegmentNames
	if segments == nil {
		segments = []string{}
	}
	return domain.Analysis{
		ID:           m.ID,
		URL:          m.URL,
		Env:          m.Env,
		Owner:        m.Owner,
		ProjectSlug:  m.ProjectSlug,
		AnalysisSlug: m.AnalysisSlug,
		CrawledURLs:  m.CrawledURLs,
		KnownURLs:    m.KnownURLs,
		SegmentNames: segments,
		Source:       domain.AnalysisSource(m.Source),
		SourceDir:    m.SourceDir,
		Links:        m.Links,
		Ready:        m.Ready,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
