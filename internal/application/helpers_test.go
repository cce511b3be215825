package application

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/zallek/galaxy/internal/adapters/db/sqlite"
	"github.com/zallek/galaxy/internal/domain"
	"github.com/zallek/galaxy/internal/identity"
	"github.com/zallek/galaxy/internal/tabular"
)

const pagesHeader = "url,compliant,http_code,response_time,pagerank,pagerank_position,nb_inlinks,nb_outlinks,segment1,segment2\n"

type memExports map[domain.ExportKind]string

func (m memExports) ResolveExport(_ context.Context, _ domain.Analysis, kind domain.ExportKind) (string, error) {
	if _, ok := m[kind]; !ok {
		return "", fmt.Errorf("%s: %w", kind, domain.ErrExportUnavailable)
	}
	return string(kind), nil
}

func (m memExports) Open(_ context.Context, location string) (io.ReadCloser, int64, error) {
	body := m[domain.ExportKind(location)]
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

type env struct {
	store    *sqlite.EntityStore
	registry *sqlite.Registry
	logger   logrus.FieldLogger
	analysis domain.Analysis
}

func newEnv(t *testing.T, crawled, known int64) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := sqlite.OpenEntityStore(ctx, filepath.Join(dir, "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry, err := sqlite.OpenRegistry(ctx, filepath.Join(dir, "analyses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	analysis, err := registry.Create(ctx, domain.Analysis{
		URL:          "https://app.botify.com/acme/shop/a1",
		CrawledURLs:  crawled,
		KnownURLs:    known,
		SegmentNames: []string{"pagetype"},
	})
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	return &env{store: store, registry: registry, logger: logger, analysis: analysis}
}

func (e *env) pipeline(exports memExports, chunkSize int, cfg GroupConfig) (*Pipeline, *Tracker) {
	tracker := NewTracker(e.store, e.logger)
	engine := NewGroupEngine(e.store, cfg, e.logger)
	return NewPipeline(e.store, e.registry, exports, exports, tabular.NewDecoder(chunkSize), tracker, engine, e.logger), tracker
}

// seed writes pages with the given segment1 values and links between page urls.
func (e *env) seed(t *testing.T, segments map[string]string, order []string, links [][2]string, follow []bool) {
	t.Helper()
	ctx := context.Background()
	pages := make([]domain.Page, 0, len(order))
	for _, url := range order {
		p := domain.Page{ID: identity.Hash(url), URL: url}
		if seg, ok := segments[url]; ok {
			p.Segment1 = strPtr(seg)
		}
		pages = append(pages, p)
	}
	require.NoError(t, e.store.UpsertPages(ctx, pages))

	rows := make([]domain.Link, 0, len(links))
	for i, l := range links {
		link := domain.Link{Source: identity.Hash(l[0]), Destination: identity.Hash(l[1]), Follow: true}
		if follow != nil {
			link.Follow = follow[i]
		}
		rows = append(rows, link)
	}
	require.NoError(t, e.store.InsertLinks(ctx, rows))
}

func nodeByKey(nodes []domain.GroupNode, key string) (domain.GroupNode, bool) {
	for _, n := range nodes {
		if n.Key1 != nil && *n.Key1 == key {
			return n, true
		}
	}
	return domain.GroupNode{}, false
}

func unknownNode(nodes []domain.GroupNode) (domain.GroupNode, bool) {
	for _, n := range nodes {
		if n.Key1 == nil {
			return n, true
		}
	}
	return domain.GroupNode{}, false
}

func linkCount(links []domain.GroupLink, from, to int64) int64 {
	for _, l := range links {
		if l.From == from && l.To == to {
			return l.Count
		}
	}
	return 0
}

// faultyStore fails selected operations of the wrapped store.
type faultyStore struct {
	domain.EntityStore
	linksErr    error
	completeErr error
}

func (s *faultyStore) LinksInRange(ctx context.Context, start, end int64, follow *bool) ([]domain.Link, error) {
	if s.linksErr != nil && start > 1 {
		return nil, s.linksErr
	}
	return s.EntityStore.LinksInRange(ctx, start, end, follow)
}

func (s *faultyStore) CompleteGroup(ctx context.Context, id uint) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	return s.EntityStore.CompleteGroup(ctx, id)
}
