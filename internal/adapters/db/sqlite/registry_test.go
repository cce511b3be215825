package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/zallek/galaxy/internal/domain"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	registry, err := OpenRegistry(ctx, filepath.Join(t.TempDir(), "analyses.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer registry.Close()

	created, err := registry.Create(ctx, domain.Analysis{
		URL:          "https://app.botify.com/acme/shop/20240101",
		Env:          "production",
		Owner:        "acme",
		ProjectSlug:  "shop",
		AnalysisSlug: "20240101",
		CrawledURLs:  120,
		KnownURLs:    150,
		SegmentNames: []string{"pagetype", "depth"},
	})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	if created.ID == 0 || created.Ready || created.Source != domain.SourceBotify {
		t.Fatalf("unexpected created analysis: %+v", created)
	}

	if err := registry.MarkReady(ctx, created.ID, 4200); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	got, err := registry.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if !got.Ready || got.Links == nil || *got.Links != 4200 {
		t.Fatalf("expected ready analysis with links, got %+v", got)
	}
	if len(got.SegmentNames) != 2 || got.SegmentNames[1] != "depth" {
		t.Fatalf("unexpected segment names: %v", got.SegmentNames)
	}
	if got.UnknownURLs() != 30 {
		t.Fatalf("expected 30 unknown urls, got %d", got.UnknownURLs())
	}

	if err := registry.MarkNotReady(ctx, created.ID); err != nil {
		t.Fatalf("mark not ready: %v", err)
	}
	got, _ = registry.Get(ctx, created.ID)
	if got.Ready || got.Links != nil {
		t.Fatalf("expected analysis to be reset, got %+v", got)
	}

	list, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list analyses: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(list))
	}

	if _, err := registry.Get(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := registry.MarkReady(ctx, 42, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on missing analysis, got %v", err)
	}
}
