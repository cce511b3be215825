package sqlite

import "time"

type PageModel struct {
	ID               int64  `gorm:"primaryKey;autoIncrement:false"`
	URL              string `gorm:"column:url;not null"`
	Compliant        bool   `gorm:"not null;default:false"`
	HTTPCode         int    `gorm:"column:http_code;not null;default:0"`
	ResponseTimeMs   int    `gorm:"column:response_time_ms;not null;default:0"`
	Pagerank         float64
	PagerankPosition int `gorm:"column:pagerank_position"`
	NbInlinks        int `gorm:"column:nb_inlinks"`
	NbOutlinks       int `gorm:"column:nb_outlinks"`
	Segment1         *string
	Segment2         *string
	Extract1         *string
	Extract2         *string
	Extract3         *string
	Extract4         *string
}

func (PageModel) TableName() string { return "pages" }

type LinkModel struct {
	ID          int64 `gorm:"primaryKey"`
	Source      int64 `gorm:"not null;index"`
	Destination int64 `gorm:"not null"`
	Follow      bool  `gorm:"not null;index"`
}

func (LinkModel) TableName() string { return "links" }

type GroupModel struct {
	ID        uint   `gorm:"primaryKey"`
	GroupBy1  string `gorm:"column:group_by1;not null;index:idx_group_dims,unique"`
	GroupBy2  string `gorm:"column:group_by2;not null;default:'';index:idx_group_dims,unique"`
	Follow    string `gorm:"not null;default:'';index:idx_group_dims,unique"`
	Status    string `gorm:"not null;default:'computing'"`
	Error     string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GroupModel) TableName() string { return "rollup_groups" }

type GroupNodeModel struct {
	ID      int64 `gorm:"primaryKey;autoIncrement:false"`
	GroupID uint  `gorm:"not null;index"`
	Key1    *string
	Key2    *string
	Count   int64 `gorm:"not null;default:0"`
}

func (GroupNodeModel) TableName() string { return "group_nodes" }

type GroupLinkModel struct {
	ID       int64 `gorm:"primaryKey"`
	GroupID  uint  `gorm:"not null;index"`
	FromNode int64 `gorm:"column:from_node;not null"`
	ToNode   int64 `gorm:"column:to_node;not null"`
	Count    int64 `gorm:"not null;default:0"`
}

func (GroupLinkModel) TableName() string { return "group_links" }

type AnalysisModel struct {
	ID           uint     `gorm:"primaryKey"`
	URL          string   `gorm:"column:url;not null;default:''"`
	Env          string   `gorm:"not null;default:''"`
	Owner        string   `gorm:"not null;default:''"`
	ProjectSlug  string   `gorm:"not null;default:''"`
	AnalysisSlug string   `gorm:"not null;default:''"`
	CrawledURLs  int64    `gorm:"column:crawled_urls;not null;default:0"`
	KnownURLs    int64    `gorm:"column:known_urls;not null;default:0"`
	SegmentNames []string `gorm:"serializer:json"`
	Source       string   `gorm:"not null;default:'botify'"`
	SourceDir    string   `gorm:"not null;default:''"`
	Links        *int64
	Ready        bool `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AnalysisModel) TableName() string { return "analyses" }
