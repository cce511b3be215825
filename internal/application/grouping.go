package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
	"golang.org/x/sync/errgroup"
)

type GroupConfig struct {
	// ChunkSize is the number of link ids each rollup task covers.
	ChunkSize int64
	Workers   int
	MaxNodes  int
	PageBatch int
}

func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		ChunkSize: 150000,
		Workers:   4,
		MaxNodes:  100,
		PageBatch: 5000,
	}
}

type GroupEngine struct {
	store  domain.EntityStore
	cfg    GroupConfig
	logger logrus.FieldLogger
}

func NewGroupEngine(store domain.EntityStore, cfg GroupConfig, logger logrus.FieldLogger) *GroupEngine {
	def := DefaultGroupConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = def.MaxNodes
	}
	if cfg.PageBatch <= 0 {
		cfg.PageBatch = def.PageBatch
	}
	return &GroupEngine{store: store, cfg: cfg, logger: logger}
}

type bucketKey struct {
	key1 string
	key2 string
}

type edgeKey struct {
	from int64
	to   int64
}

// bucketing is the outcome of phase A.
type bucketing struct {
	nodes     []domain.GroupNode
	pageNodes map[domain.PageID]int64
	unknown   int64
}

// Compute builds the group for dims and returns its id. The group row exists
// in computing state before any aggregation; on failure its partial rows are
// dropped, the error is stored on it and returned.
func (e *GroupEngine) Compute(ctx context.Context, analysis domain.Analysis, dims domain.Dimensions) (uint, error) {
	if err := dims.Validate(); err != nil {
		return 0, err
	}

	group, err := e.startGroup(ctx, dims)
	if err != nil {
		return 0, err
	}
	log := e.logger.WithFields(logrus.Fields{
		"analysis_id": analysis.ID,
		"group_id":    group.ID,
		"group_by1":   dims.GroupBy1,
		"group_by2":   dims.GroupBy2,
		"follow":      dims.Follow,
	})
	log.Debug("group computing")

	nodes, links, err := e.build(ctx, analysis, group.ID, dims)
	if err == nil {
		err = e.store.CompleteGroup(ctx, group.ID)
	}
	if err != nil {
		if ferr := e.store.FailGroup(context.WithoutCancel(ctx), group.ID, err.Error()); ferr != nil {
			log.WithError(ferr).Error("mark group failed")
		}
		recordGroup(err, 0, 0)
		log.WithError(err).Warn("group failed")
		return group.ID, err
	}
	recordGroup(nil, nodes, links)
	log.WithFields(logrus.Fields{"nodes": nodes, "links": links}).Info("group computed")
	return group.ID, nil
}

func (e *GroupEngine) startGroup(ctx context.Context, dims domain.Dimensions) (domain.Group, error) {
	group, err := e.store.FindGroup(ctx, dims)
	switch {
	case err == nil:
		if err := e.store.RestartGroup(ctx, group.ID); err != nil {
			return domain.Group{}, err
		}
		group.Status = domain.GroupComputing
		group.Error = ""
		return group, nil
	case errors.Is(err, domain.ErrNotFound):
		return e.store.CreateGroup(ctx, dims)
	default:
		return domain.Group{}, err
	}
}

func (e *GroupEngine) build(ctx context.Context, analysis domain.Analysis, groupID uint, dims domain.Dimensions) (int, int, error) {
	start := time.Now()
	b, err := e.bucketPages(ctx, analysis, groupID, dims)
	if err != nil {
		return 0, 0, err
	}
	if err := e.store.InsertGroupNodes(ctx, b.nodes); err != nil {
		return 0, 0, err
	}
	observePhase("nodes", start)

	start = time.Now()
	partials, err := e.rollupLinks(ctx, b, dims.FollowValue())
	if err != nil {
		return 0, 0, err
	}
	links := mergeEdges(groupID, partials)
	if err := e.store.InsertGroupLinks(ctx, links); err != nil {
		return 0, 0, err
	}
	observePhase("links", start)
	return len(b.nodes), len(links), nil
}

// bucketPages assigns every page to a node, ids following the highest node id
// already stored, in the order pages are first seen.
func (e *GroupEngine) bucketPages(ctx context.Context, analysis domain.Analysis, groupID uint, dims domain.Dimensions) (bucketing, error) {
	base, err := e.store.MaxGroupNodeID(ctx)
	if err != nil {
		return bucketing{}, err
	}

	b := bucketing{pageNodes: make(map[domain.PageID]int64)}
	index := make(map[bucketKey]int)
	err = e.store.EachPage(ctx, e.cfg.PageBatch, func(pages []domain.Page) error {
		for _, page := range pages {
			key := bucketKey{key1: deref(page.Dimension(dims.GroupBy1))}
			if dims.GroupBy2 != "" {
				key.key2 = deref(page.Dimension(dims.GroupBy2))
			}
			i, ok := index[key]
			if !ok {
				if len(b.nodes) >= e.cfg.MaxNodes {
					return fmt.Errorf("%w: more than %d distinct values for %s/%s", domain.ErrTooManyNodes, e.cfg.MaxNodes, dims.GroupBy1, dims.GroupBy2)
				}
				node := domain.GroupNode{
					ID:    base + int64(len(b.nodes)) + 1,
					Group: groupID,
					Key1:  strPtr(key.key1),
				}
				if dims.GroupBy2 != "" {
					node.Key2 = strPtr(key.key2)
				}
				i = len(b.nodes)
				index[key] = i
				b.nodes = append(b.nodes, node)
			}
			b.nodes[i].Count++
			b.pageNodes[page.ID] = b.nodes[i].ID
		}
		return nil
	})
	if err != nil {
		return bucketing{}, err
	}

	if unknown := analysis.UnknownURLs(); unknown > 0 {
		b.unknown = base + int64(len(b.nodes)) + 1
		b.nodes = append(b.nodes, domain.GroupNode{ID: b.unknown, Group: groupID, Count: unknown})
	}
	return b, nil
}

// rollupLinks reduces the links table to node pairs, one task per id range.
// Each task owns its result slot; slots are merged once every task returned.
func (e *GroupEngine) rollupLinks(ctx context.Context, b bucketing, follow *bool) ([]map[edgeKey]int64, error) {
	minID, maxID, err := e.store.LinkIDRange(ctx)
	if err != nil {
		return nil, err
	}
	if maxID == 0 {
		return nil, nil
	}

	chunks := int((maxID-minID)/e.cfg.ChunkSize) + 1
	partials := make([]map[edgeKey]int64, chunks)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Workers)
	for i := 0; i < chunks; i++ {
		i := i
		start := minID + int64(i)*e.cfg.ChunkSize
		end := start + e.cfg.ChunkSize
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &domain.WorkerError{Chunk: i, Start: start, End: end, Err: err}
			}
			partial, err := e.rollupChunk(gctx, b, start, end, follow)
			if err != nil {
				return &domain.WorkerError{Chunk: i, Start: start, End: end, Err: err}
			}
			partials[i] = partial
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}

func (e *GroupEngine) rollupChunk(ctx context.Context, b bucketing, start, end int64, follow *bool) (map[edgeKey]int64, error) {
	links, err := e.store.LinksInRange(ctx, start, end, follow)
	if err != nil {
		return nil, err
	}
	partial := make(map[edgeKey]int64)
	for _, link := range links {
		from, ok := b.node(link.Source)
		if !ok {
			continue
		}
		to, ok := b.node(link.Destination)
		if !ok {
			continue
		}
		partial[edgeKey{from: from, to: to}]++
	}
	return partial, nil
}

// node resolves a page to its node, falling back to the unknown node.
func (b bucketing) node(id domain.PageID) (int64, bool) {
	if n, ok := b.pageNodes[id]; ok {
		return n, true
	}
	if b.unknown != 0 {
		return b.unknown, true
	}
	return 0, false
}

func mergeEdges(groupID uint, partials []map[edgeKey]int64) []domain.GroupLink {
	merged := make(map[edgeKey]int64)
	for _, partial := range partials {
		for k, c := range partial {
			merged[k] += c
		}
	}

	links := make([]domain.GroupLink, 0, len(merged))
	for k, c := range merged {
		links = append(links, domain.GroupLink{Group: groupID, From: k.from, To: k.to, Count: c})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].From != links[j].From {
			return links[i].From < links[j].From
		}
		return links[i].To < links[j].To
	})
	return links
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func strPtr(v string) *string { return &v }
