package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zallek/galaxy/internal/domain"
)

func testAnalysis() domain.Analysis {
	return domain.Analysis{ID: 7, Env: "production", Owner: "acme", ProjectSlug: "shop", AnalysisSlug: "20240101"}
}

func newTestResolver(t *testing.T, handler http.HandlerFunc) *BotifyResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewBotifyResolver("secret", srv.URL, logger)
}

func TestResolveExportReusesPreparedJob(t *testing.T) {
	var created bool
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Token secret", req.Header.Get("Authorization"))
		require.Equal(t, "/v1/analyses/acme/shop/20240101/advanced_export", req.URL.Path)
		if req.Method == http.MethodPost {
			created = true
		}
		assert.Equal(t, "30", req.URL.Query().Get("size"))
		_, _ = io.WriteString(w, `{"results":[
			{"advanced_export_type":"ALL_URL_DETAILS","results":{"download_url":"https://dl/pages.csv"}},
			{"advanced_export_type":"ALL_LINKS","results":{"download_url":"https://dl/links.csv"}}
		]}`)
	})

	u, err := r.ResolveExport(context.Background(), testAnalysis(), domain.ExportLinks)
	require.NoError(t, err)
	assert.Equal(t, "https://dl/links.csv", u)
	assert.False(t, created)
}

func TestResolveExportCreatesMissingJob(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"results":[{"advanced_export_type":"ALL_URL_DETAILS","results":{"download_url":"https://dl/pages.csv"}}]}`)
		case http.MethodPost:
			var query exportQuery
			require.NoError(t, json.NewDecoder(req.Body).Decode(&query))
			assert.Equal(t, "ALL_LINKS", query.Type)
			_, _ = io.WriteString(w, `{"advanced_export_type":"ALL_LINKS","results":{"download_url":"https://dl/new-links.csv"}}`)
		}
	})

	u, err := r.ResolveExport(context.Background(), testAnalysis(), domain.ExportLinks)
	require.NoError(t, err)
	assert.Equal(t, "https://dl/new-links.csv", u)
}

func TestResolveExportUnavailableWithoutDownloadURL(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"results":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"advanced_export_type":"ALL_LINKS","results":null}`)
	})

	_, err := r.ResolveExport(context.Background(), testAnalysis(), domain.ExportLinks)
	assert.ErrorIs(t, err, domain.ErrExportUnavailable)
}

func TestResolveExportPropagatesAPIErrors(t *testing.T) {
	r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := r.ResolveExport(context.Background(), testAnalysis(), domain.ExportLinks)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExportUnavailable)
	assert.Contains(t, err.Error(), "500")
}

func TestAnalysisSummary(t *testing.T) {
	ref := domain.AnalysisRef{Env: "production", Owner: "acme", ProjectSlug: "shop", AnalysisSlug: "20240101"}

	t.Run("valid", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "/v1/analyses/acme/shop/20240101", req.URL.Path)
			_, _ = io.WriteString(w, `{"id":12,"url":"https://www.example.com","urls_done":1000,"urls_in_queue":1500,
				"features":{"segments":{"names":["pagetype","lang"]}}}`)
		})
		summary, err := r.AnalysisSummary(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, uint(12), summary.ID)
		assert.Equal(t, int64(1000), summary.CrawledURLs)
		assert.Equal(t, int64(1500), summary.KnownURLs)
		assert.Equal(t, []string{"pagetype", "lang"}, summary.SegmentNames)
	})

	t.Run("not found", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			http.NotFound(w, req)
		})
		_, err := r.AnalysisSummary(context.Background(), ref)
		var invalid *domain.InvalidAnalysisError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, domain.ReasonNotExists, invalid.Reason)
	})

	t.Run("no segments", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			_, _ = io.WriteString(w, `{"id":12,"urls_done":10,"urls_in_queue":10,"features":{}}`)
		})
		_, err := r.AnalysisSummary(context.Background(), ref)
		var invalid *domain.InvalidAnalysisError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, domain.ReasonNoSegments, invalid.Reason)
		assert.ErrorIs(t, err, domain.ErrInvalidAnalysis)
	})
}

func TestUnknownEnvironmentWithoutBase(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewBotifyResolver("", "", logger)
	_, err := r.AnalysisSummary(context.Background(), domain.AnalysisRef{Env: "moon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moon")
}
