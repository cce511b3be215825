package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
)

const advancedExportsPageSize = 30

// APIBases maps a Botify environment to its API root.
var APIBases = map[string]string{
	"production": "https://api.botify.com",
	"staging":    "http://api.staging.botify.com",
	"sandbox1":   "http://api.sandbox1.botify.com",
	"sandbox2":   "http://api.sandbox2.botify.com",
	"sandbox3":   "http://api.sandbox3.botify.com",
	"sandbox4":   "http://api.sandbox4.botify.com",
}

type BotifyResolver struct {
	httpClient *http.Client
	logger     logrus.FieldLogger
	token      string
	// base overrides the per-environment API root when set.
	base string
}

func NewBotifyResolver(token, base string, logger logrus.FieldLogger) *BotifyResolver {
	return &BotifyResolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		token:      token,
		base:       strings.TrimRight(base, "/"),
	}
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("botify api error (%d): %s", e.Status, e.Body)
}

type exportJob struct {
	Type    string `json:"advanced_export_type"`
	Results *struct {
		DownloadURL string `json:"download_url"`
	} `json:"results"`
}

func (j exportJob) downloadURL() string {
	if j.Results == nil {
		return ""
	}
	return j.Results.DownloadURL
}

type exportList struct {
	Results []exportJob `json:"results"`
}

type exportQuery struct {
	Type  string         `json:"advanced_export_type"`
	Query map[string]any `json:"query"`
}

type analysisSummary struct {
	ID          uint   `json:"id"`
	URL         string `json:"url"`
	URLsDone    int64  `json:"urls_done"`
	URLsInQueue int64  `json:"urls_in_queue"`
	Features    struct {
		Segments *struct {
			Names []string `json:"names"`
		} `json:"segments"`
	} `json:"features"`
}

// ResolveExport reuses a prepared export of the requested kind, or asks Botify for one.
func (r *BotifyResolver) ResolveExport(ctx context.Context, analysis domain.Analysis, kind domain.ExportKind) (string, error) {
	ref := domain.AnalysisRef{
		Env:          analysis.Env,
		Owner:        analysis.Owner,
		ProjectSlug:  analysis.ProjectSlug,
		AnalysisSlug: analysis.AnalysisSlug,
	}
	path := analysisPath(ref) + "/advanced_export"

	var list exportList
	if err := r.request(ctx, ref.Env, http.MethodGet, path+"?size="+fmt.Sprint(advancedExportsPageSize), nil, &list); err != nil {
		return "", fmt.Errorf("list exports: %w", err)
	}
	for _, job := range list.Results {
		if job.Type != string(kind) {
			continue
		}
		if u := job.downloadURL(); u != "" {
			r.logger.WithFields(logrus.Fields{"analysis_id": analysis.ID, "export": kind}).Debug("reuse export")
			return u, nil
		}
		break
	}

	var created exportJob
	query := exportQuery{Type: string(kind), Query: map[string]any{}}
	if err := r.request(ctx, ref.Env, http.MethodPost, path, query, &created); err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	u := created.downloadURL()
	if u == "" {
		return "", fmt.Errorf("%s export of analysis %d: %w", kind, analysis.ID, domain.ErrExportUnavailable)
	}
	r.logger.WithFields(logrus.Fields{"analysis_id": analysis.ID, "export": kind}).Info("export created")
	return u, nil
}

func (r *BotifyResolver) AnalysisSummary(ctx context.Context, ref domain.AnalysisRef) (domain.AnalysisSummary, error) {
	var summary analysisSummary
	if err := r.request(ctx, ref.Env, http.MethodGet, analysisPath(ref), nil, &summary); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.AnalysisSummary{}, &domain.InvalidAnalysisError{Reason: domain.ReasonNotExists}
		}
		return domain.AnalysisSummary{}, err
	}
	if summary.Features.Segments == nil || len(summary.Features.Segments.Names) == 0 {
		return domain.AnalysisSummary{}, &domain.InvalidAnalysisError{Reason: domain.ReasonNoSegments}
	}
	return domain.AnalysisSummary{
		ID:           summary.ID,
		URL:          summary.URL,
		CrawledURLs:  summary.URLsDone,
		KnownURLs:    summary.URLsInQueue,
		SegmentNames: summary.Features.Segments.Names,
	}, nil
}

func (r *BotifyResolver) apiBase(env string) (string, error) {
	if r.base != "" {
		return r.base, nil
	}
	base, ok := APIBases[env]
	if !ok {
		return "", fmt.Errorf("unknown botify environment %q", env)
	}
	return base, nil
}

func (r *BotifyResolver) request(ctx context.Context, env, method, path string, in any, out any) error {
	base, err := r.apiBase(env)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, base+"/v1"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Token "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func analysisPath(ref domain.AnalysisRef) string {
	return "/analyses/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.ProjectSlug) + "/" + url.PathEscape(ref.AnalysisSlug)
}
