package domain

import "time"

type PageID int64

type Page struct {
	ID               PageID  `json:"id"`
	URL              string  `json:"url"`
	Compliant        bool    `json:"compliant"`
	HTTPCode         int     `json:"http_code"`
	ResponseTimeMs   int     `json:"response_time_ms"`
	Pagerank         float64 `json:"pagerank"`
	PagerankPosition int     `json:"pagerank_position"`
	NbInlinks        int     `json:"nb_inlinks"`
	NbOutlinks       int     `json:"nb_outlinks"`
	Segment1         *string `json:"segment1"`
	Segment2         *string `json:"segment2"`
	Extract1         *string `json:"extract1"`
	Extract2         *string `json:"extract2"`
	Extract3         *string `json:"extract3"`
	Extract4         *string `json:"extract4"`
}

type Link struct {
	ID          int64  `json:"id"`
	Source      PageID `json:"source"`
	Destination PageID `json:"destination"`
	Follow      bool   `json:"follow"`
}

type GroupStatus string

const (
	GroupComputing GroupStatus = "computing"
	GroupSuccess   GroupStatus = "success"
	GroupFailed    GroupStatus = "failed"
)

type FollowFilter string

const (
	FollowAny      FollowFilter = ""
	FollowOnly     FollowFilter = "follow"
	FollowNoFollow FollowFilter = "nofollow"
)

// Dimensions identifies a rollup. GroupBy2 is empty when the rollup has a single
// dimension.
type Dimensions struct {
	GroupBy1 string       `json:"group_by1"`
	GroupBy2 string       `json:"group_by2,omitempty"`
	Follow   FollowFilter `json:"follow,omitempty"`
}

type Group struct {
	ID        uint        `json:"id"`
	GroupBy1  string      `json:"group_by1"`
	GroupBy2  *string     `json:"group_by2"`
	Follow    string      `json:"follow"`
	Status    GroupStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (g Group) Dimensions() Dimensions {
	d := Dimensions{GroupBy1: g.GroupBy1, Follow: FollowFilter(g.Follow)}
	if g.GroupBy2 != nil {
		d.GroupBy2 = *g.GroupBy2
	}
	return d
}

// GroupNode is a bucket of pages. Key1 and Key2 are both nil for the bucket of
// known but not crawled pages.
type GroupNode struct {
	ID    int64   `json:"id"`
	Group uint    `json:"group"`
	Key1  *string `json:"key1"`
	Key2  *string `json:"key2"`
	Count int64   `json:"count"`
}

type GroupLink struct {
	ID    int64 `json:"id"`
	Group uint  `json:"group"`
	From  int64 `json:"from"`
	To    int64 `json:"to"`
	Count int64 `json:"count"`
}

type GroupGraph struct {
	Nodes []GroupNode `json:"nodes"`
	Links []GroupLink `json:"links"`
}

type GroupState struct {
	Dimensions Dimensions  `json:"dimensions"`
	Status     GroupStatus `json:"status"`
	ID         uint        `json:"id,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type AnalysisSource string

const (
	SourceBotify AnalysisSource = "botify"
	SourceLocal  AnalysisSource = "local"
)

type Analysis struct {
	ID           uint           `json:"id"`
	URL          string         `json:"url"`
	Env          string         `json:"env"`
	Owner        string         `json:"owner"`
	ProjectSlug  string         `json:"project_slug"`
	AnalysisSlug string         `json:"analysis_slug"`
	CrawledURLs  int64          `json:"crawled_urls"`
	KnownURLs    int64          `json:"known_urls"`
	SegmentNames []string       `json:"segment_names"`
	Source       AnalysisSource `json:"source"`
	SourceDir    string         `json:"source_dir,omitempty"`
	Links        *int64         `json:"links"`
	Ready        bool           `json:"ready"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// UnknownURLs is the number of pages referenced by the crawl but never fetched.
func (a Analysis) UnknownURLs() int64 {
	if a.KnownURLs > a.CrawledURLs {
		return a.KnownURLs - a.CrawledURLs
	}
	return 0
}

type AnalysisRef struct {
	Env          string `json:"env"`
	Owner        string `json:"owner"`
	ProjectSlug  string `json:"project_slug"`
	AnalysisSlug string `json:"analysis_slug"`
}

type AnalysisSummary struct {
	ID           uint
	URL          string
	CrawledURLs  int64
	KnownURLs    int64
	SegmentNames []string
}

type ExportKind string

const (
	ExportLinks       ExportKind = "ALL_LINKS"
	ExportPageDetails ExportKind = "ALL_URL_DETAILS"
)

type Stage string

const (
	StagePages Stage = "pages"
	StageLinks Stage = "links"
	StageGroup Stage = "group"
	StageReady Stage = "ready"
)

type Progress struct {
	Stage    Stage   `json:"stage"`
	Done     int64   `json:"done"`
	Fraction float64 `json:"fraction"`
}
