package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zallek/galaxy/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const writeBatchSize = 500

type EntityStore struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{
		Logger:          logger.Default.LogMode(logger.Silent),
		CreateBatchSize: writeBatchSize,
	})
}

// OpenEntityStore opens (and migrates) the store file of one analysis.
func OpenEntityStore(ctx context.Context, path string) (*EntityStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, storeErr("open", err)
	}
	if err := RunMigrations(ctx, db, analysisMigrations); err != nil {
		return nil, storeErr("migrate", err)
	}
	return NewEntityStore(db), nil
}

func NewEntityStore(db *gorm.DB) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *EntityStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"group_links", "group_nodes", "rollup_groups", "links", "pages"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ('links', 'rollup_groups')").Error
	})
	return storeErr("clear", err)
}

func (s *EntityStore) UpsertPages(ctx context.Context, pages []domain.Page) error {
	if len(pages) == 0 {
		return nil
	}
	rows := make([]PageModel, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, toPageModel(p))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(&rows, writeBatchSize).Error
	})
	return storeErr("upsert pages", err)
}

func (s *EntityStore) GetPage(ctx context.Context, id domain.PageID) (domain.Page, error) {
	var m PageModel
	if err := s.db.WithContext(ctx).First(&m, int64(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Page{}, fmt.Errorf("page %d: %w", id, domain.ErrNotFound)
		}
		return domain.Page{}, storeErr("get page", err)
	}
	return fromPageModel(m), nil
}

func (s *EntityStore) CountPages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&PageModel{}).Count(&count).Error
	return count, storeErr("count pages", err)
}

// EachPage walks every page in id order, batchSize rows at a time.
func (s *EntityStore) EachPage(ctx context.Context, batchSize int, fn func([]domain.Page) error) error {
	if batchSize <= 0 {
		batchSize = 5000
	}
	var (
		last    int64
		started bool
	)
	for {
		q := s.db.WithContext(ctx).Model(&PageModel{})
		if started {
			q = q.Where("id > ?", last)
		}
		rows := make([]PageModel, 0, batchSize)
		if err := q.Order("id ASC").Limit(batchSize).Find(&rows).Error; err != nil {
			return storeErr("scan pages", err)
		}
		if len(rows) == 0 {
			return nil
		}
		pages := make([]domain.Page, 0, len(rows))
		for _, m := range rows {
			pages = append(pages, fromPageModel(m))
		}
		if err := fn(pages); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
		last = rows[len(rows)-1].ID
		started = true
	}
}

func (s *EntityStore) InsertLinks(ctx context.Context, links []domain.Link) error {
	if len(links) == 0 {
		return nil
	}
	rows := make([]LinkModel, 0, len(links))
	for _, l := range links {
		rows = append(rows, LinkModel{Source: int64(l.Source), Destination: int64(l.Destination), Follow: l.Follow})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, writeBatchSize).Error
	})
	return storeErr("insert links", err)
}

func (s *EntityStore) CountLinks(ctx context.Context, follow *bool) (int64, error) {
	q := s.db.WithContext(ctx).Model(&LinkModel{})
	if follow != nil {
		q = q.Where("follow = ?", *follow)
	}
	var count int64
	err := q.Count(&count).Error
	return count, storeErr("count links", err)
}

// LinkIDRange returns the smallest and largest link ids, both 0 when there are no links.
func (s *EntityStore) LinkIDRange(ctx context.Context) (int64, int64, error) {
	var row struct {
		MinID int64
		MaxID int64
	}
	err := s.db.WithContext(ctx).Raw(`SELECT COALESCE(MIN(id), 0) AS min_id, COALESCE(MAX(id), 0) AS max_id FROM links`).Scan(&row).Error
	if err != nil {
		return 0, 0, storeErr("link id range", err)
	}
	return row.MinID, row.MaxID, nil
}

// LinksInRange returns links with start <= id < end.
func (s *EntityStore) LinksInRange(ctx context.Context, start, end int64, follow *bool) ([]domain.Link, error) {
	q := s.db.WithContext(ctx).Model(&LinkModel{}).Where("id >= ? AND id < ?", start, end)
	if follow != nil {
		q = q.Where("follow = ?", *follow)
	}
	rows := make([]LinkModel, 0)
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("read links", err)
	}
	result := make([]domain.Link, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.Link{
			ID:          m.ID,
			Source:      domain.PageID(m.Source),
			Destination: domain.PageID(m.Destination),
			Follow:      m.Follow,
		})
	}
	return result, nil
}

func (s *EntityStore) FindGroup(ctx context.Context, dims domain.Dimensions) (domain.Group, error) {
	var m GroupModel
	err := s.db.WithContext(ctx).
		Where("group_by1 = ? AND group_by2 = ? AND follow = ?", dims.GroupBy1, dims.GroupBy2, string(dims.Follow)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Group{}, fmt.Errorf("group %s/%s: %w", dims.GroupBy1, dims.GroupBy2, domain.ErrNotFound)
		}
		return domain.Group{}, storeErr("find group", err)
	}
	return fromGroupModel(m), nil
}

func (s *EntityStore) GetGroup(ctx context.Context, id uint) (domain.Group, error) {
	var m GroupModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Group{}, fmt.Errorf("group %d: %w", id, domain.ErrNotFound)
		}
		return domain.Group{}, storeErr("get group", err)
	}
	return fromGroupModel(m), nil
}

func (s *EntityStore) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows := make([]GroupModel, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("list groups", err)
	}
	result := make([]domain.Group, 0, len(rows))
	for _, m := range rows {
		result = append(result, fromGroupModel(m))
	}
	return result, nil
}

func (s *EntityStore) CreateGroup(ctx context.Context, dims domain.Dimensions) (domain.Group, error) {
	m := GroupModel{
		GroupBy1: dims.GroupBy1,
		GroupBy2: dims.GroupBy2,
		Follow:   string(dims.Follow),
		Status:   string(domain.GroupComputing),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Group{}, storeErr("create group", err)
	}
	return fromGroupModel(m), nil
}

func (s *EntityStore) RestartGroup(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteGroupRows(tx, id); err != nil {
			return err
		}
		return tx.Model(&GroupModel{}).Where("id = ?", id).
			Updates(map[string]any{"status": string(domain.GroupComputing), "error": ""}).Error
	})
	return storeErr("restart group", err)
}

func (s *EntityStore) CompleteGroup(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&GroupModel{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(domain.GroupSuccess), "error": ""}).Error
	return storeErr("complete group", err)
}

// FailGroup drops whatever the computation persisted and records the error.
func (s *EntityStore) FailGroup(ctx context.Context, id uint, message string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteGroupRows(tx, id); err != nil {
			return err
		}
		return tx.Model(&GroupModel{}).Where("id = ?", id).
			Updates(map[string]any{"status": string(domain.GroupFailed), "error": message}).Error
	})
	return storeErr("fail group", err)
}

func (s *EntityStore) MaxGroupNodeID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.db.WithContext(ctx).Raw(`SELECT COALESCE(MAX(id), 0) FROM group_nodes`).Scan(&maxID).Error
	return maxID, storeErr("max group node id", err)
}

func (s *EntityStore) InsertGroupNodes(ctx context.Context, nodes []domain.GroupNode) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]GroupNodeModel, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, GroupNodeModel{ID: n.ID, GroupID: n.Group, Key1: n.Key1, Key2: n.Key2, Count: n.Count})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, writeBatchSize).Error
	})
	return storeErr("insert group nodes", err)
}

func (s *EntityStore) InsertGroupLinks(ctx context.Context, links []domain.GroupLink) error {
	if len(links) == 0 {
		return nil
	}
	rows := make([]GroupLinkModel, 0, len(links))
	for _, l := range links {
		rows = append(rows, GroupLinkModel{GroupID: l.Group, FromNode: l.From, ToNode: l.To, Count: l.Count})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, writeBatchSize).Error
	})
	return storeErr("insert group links", err)
}

func (s *EntityStore) GroupNodes(ctx context.Context, groupID uint) ([]domain.GroupNode, error) {
	rows := make([]GroupNodeModel, 0)
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("group nodes", err)
	}
	result := make([]domain.GroupNode, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.GroupNode{ID: m.ID, Group: m.GroupID, Key1: m.Key1, Key2: m.Key2, Count: m.Count})
	}
	return result, nil
}

func (s *EntityStore) GroupLinks(ctx context.Context, groupID uint) ([]domain.GroupLink, error) {
	rows := make([]GroupLinkModel, 0)
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, storeErr("group links", err)
	}
	result := make([]domain.GroupLink, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.GroupLink{ID: m.ID, Group: m.GroupID, From: m.FromNode, To: m.ToNode, Count: m.Count})
	}
	return result, nil
}

func deleteGroupRows(tx *gorm.DB, groupID uint) error {
	if err := tx.Where("group_id = ?", groupID).Delete(&GroupLinkModel{}).Error; err != nil {
		return err
	}
	return tx.Where("group_id = ?", groupID).Delete(&GroupNodeModel{}).Error
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.StoreError{Op: op, Err: err}
}

func toPageModel(p domain.Page) PageModel {
	return PageModel{
		ID:               int64(p.ID),
		URL:              p.URL,
		Compliant:        p.Compliant,
		HTTPCode:         p.HTTPCode,
		ResponseTimeMs:   p.ResponseTimeMs,
		Pagerank:         p.Pagerank,
		PagerankPosition: p.PagerankPosition,
		NbInlinks:        p.NbInlinks,
		NbOutlinks:       p.NbOutlinks,
		Segment1:         p.Segment1,
		Segment2:         p.Segment2,
		Extract1:         p.Extract1,
		Extract2:         p.Extract2,
		Extract3:         p.Extract3,
		Extract4:         p.Extract4,
	}
}

func fromPageModel(m PageModel) domain.Page {
	return domain.Page{
		ID:               domain.PageID(m.ID),
		URL:              m.URL,
		Compliant:        m.Compliant,
		HTTPCode:         m.HTTPCode,
		ResponseTimeMs:   m.ResponseTimeMs,
		Pagerank:         m.Pagerank,
		PagerankPosition: m.PagerankPosition,
		NbInlinks:        m.NbInlinks,
		NbOutlinks:       m.NbOutlinks,
		Segment1:         m.Segment1,
		Segment2:         m.Segment2,
		Extract1:         m.Extract1,
		Extract2:         m.Extract2,
		Extract3:         m.Extract3,
		Extract4:         m.Extract4,
	}
}

func fromGroupModel(m GroupModel) domain.Group {
	g := domain.Group{
		ID:        m.ID,
		GroupBy1:  m.GroupBy1,
		Follow:    m.Follow,
		Status:    domain.GroupStatus(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.GroupBy2 != "" {
		groupBy2 := m.GroupBy2
		g.GroupBy2 = &groupBy2
	}
	return g
}
