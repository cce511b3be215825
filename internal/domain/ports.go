package domain

import (
	"context"
	"io"
)

type EntityStore interface {
	Clear(ctx context.Context) error

	UpsertPages(ctx context.Context, pages []Page) error
	GetPage(ctx context.Context, id PageID) (Page, error)
	CountPages(ctx context.Context) (int64, error)
	EachPage(ctx context.Context, batchSize int, fn func([]Page) error) error

	InsertLinks(ctx context.Context, links []Link) error
	CountLinks(ctx context.Context, follow *bool) (int64, error)
	LinkIDRange(ctx context.Context) (int64, int64, error)
	LinksInRange(ctx context.Context, start, end int64, follow *bool) ([]Link, error)

	FindGroup(ctx context.Context, dims Dimensions) (Group, error)
	GetGroup(ctx context.Context, id uint) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, dims Dimensions) (Group, error)
	RestartGroup(ctx context.Context, id uint) error
	CompleteGroup(ctx context.Context, id uint) error
	FailGroup(ctx context.Context, id uint, message string) error

	MaxGroupNodeID(ctx context.Context) (int64, error)
	InsertGroupNodes(ctx context.Context, nodes []GroupNode) error
	InsertGroupLinks(ctx context.Context, links []GroupLink) error
	GroupNodes(ctx context.Context, groupID uint) ([]GroupNode, error)
	GroupLinks(ctx context.Context, groupID uint) ([]GroupLink, error)

	Close() error
}

type AnalysisRegistry interface {
	Create(ctx context.Context, value Analysis) (Analysis, error)
	Get(ctx context.Context, id uint) (Analysis, error)
	List(ctx context.Context) ([]Analysis, error)
	MarkReady(ctx context.Context, id uint, links int64) error
	MarkNotReady(ctx context.Context, id uint) error
}

// ExportResolver returns a location the export of the given kind can be streamed
// from, or ErrExportUnavailable while the remote side is still preparing it.
type ExportResolver interface {
	ResolveExport(ctx context.Context, analysis Analysis, kind ExportKind) (string, error)
}

// SourceOpener streams a resolved export location. size is -1 when unknown.
type SourceOpener interface {
	Open(ctx context.Context, location string) (body io.ReadCloser, size int64, err error)
}

type SummaryProvider interface {
	AnalysisSummary(ctx context.Context, ref AnalysisRef) (AnalysisSummary, error)
}

// StoreFactory opens the entity store of one analysis.
type StoreFactory interface {
	OpenStore(ctx context.Context, analysisID uint) (EntityStore, error)
}
