package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zallek/galaxy/internal/adapters/db/sqlite"
	"github.com/zallek/galaxy/internal/domain"
)

type staticSummaries struct {
	summary domain.AnalysisSummary
	err     error
}

func (s staticSummaries) AnalysisSummary(context.Context, domain.AnalysisRef) (domain.AnalysisSummary, error) {
	return s.summary, s.err
}

func newTestCatalog(t *testing.T, summaries domain.SummaryProvider, exports memExports) *AnalysisCatalog {
	t.Helper()
	dir := t.TempDir()
	registry, err := sqlite.OpenRegistry(context.Background(), filepath.Join(dir, "analyses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	logger, _ := test.NewNullLogger()
	return NewAnalysisCatalog(registry, summaries, exports, exports, sqlite.StoreFactory{DataDir: dir}, CatalogConfig{IngestChunkSize: 2}, logger)
}

func TestCatalogCreateFromURL(t *testing.T) {
	ctx := context.Background()
	ref := domain.AnalysisRef{Env: "production", Owner: "acme", ProjectSlug: "shop", AnalysisSlug: "a1"}

	catalog := newTestCatalog(t, staticSummaries{summary: domain.AnalysisSummary{CrawledURLs: 10, KnownURLs: 12, SegmentNames: []string{"type"}}}, nil)
	analysis, err := catalog.CreateFromURL(ctx, "https://app.botify.com/acme/shop/a1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), analysis.UnknownURLs())
	assert.Equal(t, domain.SourceBotify, analysis.Source)
	assert.Equal(t, "shop", analysis.ProjectSlug)

	invalid := newTestCatalog(t, staticSummaries{err: &domain.InvalidAnalysisError{Reason: domain.ReasonNoSegments}}, nil)
	_, err = invalid.CreateFromURL(ctx, "https://app.botify.com/acme/shop/a1", ref)
	assert.ErrorIs(t, err, domain.ErrInvalidAnalysis)
	list, _ := invalid.List(ctx)
	assert.Empty(t, list)
}

func TestServiceIngestAndCompute(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t, nil, memExports{domain.ExportPageDetails: extractPages, domain.ExportLinks: exampleLinks})

	analysis, err := catalog.CreateLocal(ctx, LocalAnalysis{Dir: "/exports/shop", CrawledURLs: 3, KnownURLs: 4})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, analysis.Source)

	svc, err := catalog.Open(ctx, analysis.ID)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.ComputeGroup(ctx, domain.Dimensions{GroupBy1: "segment2"}, false)
	require.ErrorIs(t, err, domain.ErrNotReady)

	require.NoError(t, svc.Ingest(ctx, nil))

	id, err := svc.ComputeGroup(ctx, domain.Dimensions{GroupBy1: "segment1", GroupBy2: "compliant"}, false)
	require.NoError(t, err)
	group, graph, err := svc.GetGroup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupSuccess, group.Status)
	assert.Len(t, graph.Nodes, 4, "x/true, x/false, y/true and the unknown bucket")

	cached, err := svc.ComputeGroup(ctx, domain.Dimensions{GroupBy1: "segment1", GroupBy2: "compliant"}, false)
	require.NoError(t, err)
	assert.Equal(t, id, cached)

	state, err := svc.ComputeGroupAsync(ctx, domain.Dimensions{GroupBy1: "http_code"}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupComputing, state.Status)
	require.Eventually(t, func() bool {
		for _, s := range svc.GroupStates() {
			if s.Dimensions.GroupBy1 == "http_code" && s.Status == domain.GroupSuccess {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, svc.GroupStates(), 3)
}

func TestCatalogOpenUnknownAnalysis(t *testing.T) {
	catalog := newTestCatalog(t, nil, nil)
	_, err := catalog.Open(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceComputeQueuedBehindIngestionRereadsAnalysis(t *testing.T) {
	ctx := context.Background()
	catalog := newTestCatalog(t, nil, memExports{domain.ExportPageDetails: extractPages, domain.ExportLinks: exampleLinks})

	analysis, err := catalog.CreateLocal(ctx, LocalAnalysis{Dir: "/exports/shop", CrawledURLs: 3, KnownURLs: 3})
	require.NoError(t, err)
	svc, err := catalog.Open(ctx, analysis.ID)
	require.NoError(t, err)
	defer svc.Close()
	require.NoError(t, svc.Ingest(ctx, nil))

	dims := domain.Dimensions{GroupBy1: "http_code"}
	svc.mu.Lock()
	state, err := svc.ComputeGroupAsync(ctx, dims, false)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupComputing, state.Status)
	require.NoError(t, svc.registry.MarkNotReady(ctx, analysis.ID))
	svc.mu.Unlock()

	require.Eventually(t, func() bool {
		for _, s := range svc.GroupStates() {
			if s.Dimensions == dims && s.Status == domain.GroupFailed {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	for _, s := range svc.GroupStates() {
		if s.Dimensions == dims {
			assert.Contains(t, s.Error, "not ready")
		}
	}
}
