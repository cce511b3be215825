package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
	"github.com/zallek/galaxy/internal/tabular"
)

type CatalogConfig struct {
	IngestChunkSize int
	Group           GroupConfig
}

// AnalysisCatalog creates analyses and opens the service of each one.
type AnalysisCatalog struct {
	registry  domain.AnalysisRegistry
	summaries domain.SummaryProvider
	resolver  domain.ExportResolver
	opener    domain.SourceOpener
	stores    domain.StoreFactory
	cfg       CatalogConfig
	logger    logrus.FieldLogger
}

func NewAnalysisCatalog(
	registry domain.AnalysisRegistry,
	summaries domain.SummaryProvider,
	resolver domain.ExportResolver,
	opener domain.SourceOpener,
	stores domain.StoreFactory,
	cfg CatalogConfig,
	logger logrus.FieldLogger,
) *AnalysisCatalog {
	return &AnalysisCatalog{
		registry:  registry,
		summaries: summaries,
		resolver:  resolver,
		opener:    opener,
		stores:    stores,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateFromURL registers a Botify analysis after checking it exists and has segments.
func (c *AnalysisCatalog) CreateFromURL(ctx context.Context, rawURL string, ref domain.AnalysisRef) (domain.Analysis, error) {
	if c.summaries == nil {
		return domain.Analysis{}, errors.New("botify access is not configured")
	}
	summary, err := c.summaries.AnalysisSummary(ctx, ref)
	if err != nil {
		return domain.Analysis{}, err
	}

	analysis, err := c.registry.Create(ctx, domain.Analysis{
		URL:          rawURL,
		Env:          ref.Env,
		Owner:        ref.Owner,
		ProjectSlug:  ref.ProjectSlug,
		AnalysisSlug: ref.AnalysisSlug,
		CrawledURLs:  summary.CrawledURLs,
		KnownURLs:    summary.KnownURLs,
		SegmentNames: summary.SegmentNames,
		Source:       domain.SourceBotify,
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	c.logger.WithFields(logrus.Fields{"analysis_id": analysis.ID, "url": rawURL}).Info("analysis created")
	return analysis, nil
}

type LocalAnalysis struct {
	Dir          string
	Name         string
	CrawledURLs  int64
	KnownURLs    int64
	SegmentNames []string
}

func (c *AnalysisCatalog) CreateLocal(ctx context.Context, in LocalAnalysis) (domain.Analysis, error) {
	if strings.TrimSpace(in.Dir) == "" {
		return domain.Analysis{}, errors.New("dir is required")
	}
	if in.CrawledURLs < 0 || in.KnownURLs < 0 {
		return domain.Analysis{}, errors.New("url counts must not be negative")
	}
	name := in.Name
	if name == "" {
		name = in.Dir
	}
	segments := in.SegmentNames
	if segments == nil {
		segments = []string{}
	}

	analysis, err := c.registry.Create(ctx, domain.Analysis{
		URL:          name,
		AnalysisSlug: name,
		CrawledURLs:  in.CrawledURLs,
		KnownURLs:    in.KnownURLs,
		SegmentNames: segments,
		Source:       domain.SourceLocal,
		SourceDir:    in.Dir,
	})
	if err != nil {
		return domain.Analysis{}, err
	}
	c.logger.WithFields(logrus.Fields{"analysis_id": analysis.ID, "dir": in.Dir}).Info("analysis created")
	return analysis, nil
}

func (c *AnalysisCatalog) List(ctx context.Context) ([]domain.Analysis, error) {
	return c.registry.List(ctx)
}

// Open returns the service of an analysis with its group states loaded.
func (c *AnalysisCatalog) Open(ctx context.Context, id uint) (*AnalysisService, error) {
	analysis, err := c.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	store, err := c.stores.OpenStore(ctx, analysis.ID)
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithField("analysis_id", analysis.ID)
	tracker := NewTracker(store, logger)
	if err := tracker.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := NewGroupEngine(store, c.cfg.Group, logger)
	pipeline := NewPipeline(store, c.registry, c.resolver, c.opener, tabular.NewDecoder(c.cfg.IngestChunkSize), tracker, engine, logger)

	return &AnalysisService{
		analysisID: analysis.ID,
		store:      store,
		registry:   c.registry,
		pipeline:   pipeline,
		engine:     engine,
		tracker:    tracker,
		logger:     logger,
	}, nil
}

// AnalysisService runs ingestion and group computations of one analysis, one
// at a time.
type AnalysisService struct {
	analysisID uint
	store      domain.EntityStore
	registry   domain.AnalysisRegistry
	pipeline   *Pipeline
	engine     *GroupEngine
	tracker    *Tracker
	logger     logrus.FieldLogger

	mu sync.Mutex
	wg sync.WaitGroup
}

func (s *AnalysisService) Info(ctx context.Context) (domain.Analysis, error) {
	return s.registry.Get(ctx, s.analysisID)
}

func (s *AnalysisService) Ingest(ctx context.Context, notify ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline.Ingest(ctx, s.analysisID, notify)
}

func (s *AnalysisService) ComputeGroup(ctx context.Context, dims domain.Dimensions, force bool) (uint, error) {
	if _, err := s.readyAnalysis(ctx); err != nil {
		return 0, err
	}
	id, cached, err := s.tracker.Begin(dims, force)
	if err != nil || cached {
		return id, err
	}
	id, err = s.compute(ctx, dims)
	s.tracker.Finish(dims, id, err)
	return id, err
}

// ComputeGroupAsync starts the computation in the background and returns the
// state right after it was registered.
func (s *AnalysisService) ComputeGroupAsync(ctx context.Context, dims domain.Dimensions, force bool) (domain.GroupState, error) {
	if _, err := s.readyAnalysis(ctx); err != nil {
		return domain.GroupState{}, err
	}
	id, cached, err := s.tracker.Begin(dims, force)
	if err != nil {
		return domain.GroupState{}, err
	}
	if cached {
		return domain.GroupState{Dimensions: dims, Status: domain.GroupSuccess, ID: id}, nil
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		id, err := s.compute(bg, dims)
		s.tracker.Finish(dims, id, err)
	}()
	return domain.GroupState{Dimensions: dims, Status: domain.GroupComputing, ID: id}, nil
}

func (s *AnalysisService) GroupStates() []domain.GroupState {
	return s.tracker.States()
}

func (s *AnalysisService) GetGroup(ctx context.Context, id uint) (domain.Group, domain.GroupGraph, error) {
	return s.tracker.GetGroup(ctx, id)
}

// Close waits for background computations and closes the store.
func (s *AnalysisService) Close() error {
	s.wg.Wait()
	return s.store.Close()
}

// compute reads the analysis again once it holds the lock.
func (s *AnalysisService) compute(ctx context.Context, dims domain.Dimensions) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	analysis, err := s.readyAnalysis(ctx)
	if err != nil {
		return 0, err
	}
	return s.engine.Compute(ctx, analysis, dims)
}

func (s *AnalysisService) readyAnalysis(ctx context.Context) (domain.Analysis, error) {
	analysis, err := s.Info(ctx)
	if err != nil {
		return domain.Analysis{}, err
	}
	if !analysis.Ready {
		return domain.Analysis{}, fmt.Errorf("analysis %d: %w", analysis.ID, domain.ErrNotReady)
	}
	return analysis, nil
}
