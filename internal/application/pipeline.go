package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
	"github.com/zallek/galaxy/internal/identity"
	"github.com/zallek/galaxy/internal/tabular"
)

const (
	pageFixedColumns = 10
	maxExtracts      = 4
	linkColumns      = 4

	internalLinkType = "Internal"
	followLinkValue  = "Follow"
)

type ProgressFunc func(domain.Progress)

// Pipeline loads the page details and links exports of one analysis into its store.
type Pipeline struct {
	store    domain.EntityStore
	registry domain.AnalysisRegistry
	resolver domain.ExportResolver
	opener   domain.SourceOpener
	decoder  *tabular.Decoder
	tracker  *Tracker
	engine   *GroupEngine
	logger   logrus.FieldLogger
}

func NewPipeline(
	store domain.EntityStore,
	registry domain.AnalysisRegistry,
	resolver domain.ExportResolver,
	opener domain.SourceOpener,
	decoder *tabular.Decoder,
	tracker *Tracker,
	engine *GroupEngine,
	logger logrus.FieldLogger,
) *Pipeline {
	if decoder == nil {
		decoder = tabular.NewDecoder(tabular.DefaultChunkSize)
	}
	return &Pipeline{
		store:    store,
		registry: registry,
		resolver: resolver,
		opener:   opener,
		decoder:  decoder,
		tracker:  tracker,
		engine:   engine,
		logger:   logger,
	}
}

func (p *Pipeline) Ingest(ctx context.Context, analysisID uint, notify ProgressFunc) (err error) {
	if notify == nil {
		notify = func(domain.Progress) {}
	}
	defer func() { recordIngestion(err) }()

	analysis, err := p.registry.Get(ctx, analysisID)
	if err != nil {
		return err
	}
	log := p.logger.WithField("analysis_id", analysis.ID)

	if err := p.registry.MarkNotReady(ctx, analysis.ID); err != nil {
		return err
	}
	if err := p.store.Clear(ctx); err != nil {
		return err
	}
	p.tracker.Reset()

	start := time.Now()
	pages, err := p.ingestPages(ctx, analysis, notify)
	if err != nil {
		return err
	}
	observeStage(string(domain.StagePages), start)
	log.WithField("pages", pages).Info("pages ingested")

	start = time.Now()
	links, err := p.ingestLinks(ctx, analysis, notify)
	if err != nil {
		return err
	}
	observeStage(string(domain.StageLinks), start)
	log.WithField("links", links).Info("links ingested")

	start = time.Now()
	notify(domain.Progress{Stage: domain.StageGroup})
	dims := domain.Dimensions{GroupBy1: domain.DefaultDimension}
	groupID, gerr := p.tracker.GetOrCompute(ctx, dims, true, func(ctx context.Context, dims domain.Dimensions) (uint, error) {
		return p.engine.Compute(ctx, analysis, dims)
	})
	switch {
	case errors.Is(gerr, domain.ErrStore):
		return gerr
	case gerr != nil:
		log.WithError(gerr).Warn("default group failed")
	default:
		log.WithField("group_id", groupID).Info("default group computed")
	}
	observeStage(string(domain.StageGroup), start)

	if err := p.registry.MarkReady(ctx, analysis.ID, links); err != nil {
		return err
	}
	notify(domain.Progress{Stage: domain.StageReady, Done: links, Fraction: 1})
	return nil
}

func (p *Pipeline) ingestPages(ctx context.Context, analysis domain.Analysis, notify ProgressFunc) (int64, error) {
	body, err := p.open(ctx, analysis, domain.ExportPageDetails)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	var done int64
	_, err = p.decoder.Decode(ctx, body, func(chunk tabular.Chunk) error {
		layout, err := newPageLayout(chunk.Schema)
		if err != nil {
			return err
		}
		pages := make([]domain.Page, 0, len(chunk.Records))
		for i, record := range chunk.Records {
			page, err := layout.page(record)
			if err != nil {
				return &domain.DecodeError{Line: chunk.Offset + i + 1, Err: err}
			}
			pages = append(pages, page)
		}
		if err := p.store.UpsertPages(ctx, pages); err != nil {
			return err
		}
		recordPages(len(pages))
		done += int64(len(pages))
		notify(domain.Progress{Stage: domain.StagePages, Done: done, Fraction: ratio(done, analysis.CrawledURLs)})
		return nil
	})
	return done, err
}

func (p *Pipeline) ingestLinks(ctx context.Context, analysis domain.Analysis, notify ProgressFunc) (int64, error) {
	body, size, err := p.openSized(ctx, analysis, domain.ExportLinks)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	var done int64
	_, err = p.decoder.Decode(ctx, body, func(chunk tabular.Chunk) error {
		if chunk.Schema.Width < linkColumns {
			return &domain.DecodeError{Line: 1, Err: fmt.Errorf("links export has %d columns, want %d", chunk.Schema.Width, linkColumns)}
		}
		links := make([]domain.Link, 0, len(chunk.Records))
		for _, record := range chunk.Records {
			if record[2] != internalLinkType {
				continue
			}
			links = append(links, domain.Link{
				Source:      identity.Hash(record[0]),
				Destination: identity.Hash(record[1]),
				Follow:      record[3] == followLinkValue,
			})
		}
		if err := p.store.InsertLinks(ctx, links); err != nil {
			return err
		}
		recordLinks(len(links), len(chunk.Records)-len(links))
		done += int64(len(links))
		notify(domain.Progress{Stage: domain.StageLinks, Done: done, Fraction: ratio(chunk.BytesRead, size)})
		return nil
	})
	return done, err
}

func (p *Pipeline) open(ctx context.Context, analysis domain.Analysis, kind domain.ExportKind) (io.ReadCloser, error) {
	body, _, err := p.openSized(ctx, analysis, kind)
	return body, err
}

func (p *Pipeline) openSized(ctx context.Context, analysis domain.Analysis, kind domain.ExportKind) (io.ReadCloser, int64, error) {
	location, err := p.resolver.ResolveExport(ctx, analysis, kind)
	if err != nil {
		return nil, 0, err
	}
	p.logger.WithFields(logrus.Fields{"analysis_id": analysis.ID, "export": kind}).Debug("export resolved")
	return p.opener.Open(ctx, location)
}

// pageLayout locates page attributes in a page details record. Exports may
// prepend up to four extract columns before the fixed ones.
type pageLayout struct {
	extracts int
}

func newPageLayout(schema *tabular.Schema) (pageLayout, error) {
	extracts := schema.Width - pageFixedColumns
	if extracts < 0 || extracts > maxExtracts {
		return pageLayout{}, &domain.DecodeError{
			Line: 1,
			Err:  fmt.Errorf("page details export has %d columns, want %d to %d", schema.Width, pageFixedColumns, pageFixedColumns+maxExtracts),
		}
	}
	return pageLayout{extracts: extracts}, nil
}

func (l pageLayout) page(record []string) (domain.Page, error) {
	col := func(i int) string { return record[l.extracts+i] }

	var (
		page domain.Page
		err  error
	)
	page.URL = col(0)
	page.ID = identity.Hash(page.URL)
	if page.Compliant, err = parseBool(col(1)); err != nil {
		return page, fmt.Errorf("compliant: %w", err)
	}
	if page.HTTPCode, err = parseInt(col(2)); err != nil {
		return page, fmt.Errorf("http_code: %w", err)
	}
	if page.ResponseTimeMs, err = parseInt(col(3)); err != nil {
		return page, fmt.Errorf("response_time: %w", err)
	}
	if page.Pagerank, err = parseFloat(col(4)); err != nil {
		return page, fmt.Errorf("pagerank: %w", err)
	}
	if page.PagerankPosition, err = parseInt(col(5)); err != nil {
		return page, fmt.Errorf("pagerank_position: %w", err)
	}
	if page.NbInlinks, err = parseInt(col(6)); err != nil {
		return page, fmt.Errorf("nb_inlinks: %w", err)
	}
	if page.NbOutlinks, err = parseInt(col(7)); err != nil {
		return page, fmt.Errorf("nb_outlinks: %w", err)
	}
	page.Segment1 = optional(col(8))
	page.Segment2 = optional(col(9))

	extracts := []**string{&page.Extract1, &page.Extract2, &page.Extract3, &page.Extract4}
	for i := 0; i < l.extracts; i++ {
		*extracts[i] = optional(record[i])
	}
	return page, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false, nil
	case "true", "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

func parseInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(done) / float64(total)
	if r > 1 {
		return 1
	}
	return r
}
