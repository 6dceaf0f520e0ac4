package models

import "time"

// Aweme is the slice of a douyin video payload the pipeline consumes.
type Aweme struct {
	ID         string         `json:"aweme_id" bson:"aweme_id"`
	Desc       string         `json:"desc" bson:"desc"`
	CreateTime int64          `json:"create_time" bson:"create_time"`
	Nickname   string         `json:"nickname" bson:"nickname"`
	SecUID     string         `json:"sec_uid,omitempty" bson:"sec_uid,omitempty"`
	PlayURL    string         `json:"play_url,omitempty" bson:"play_url,omitempty"`
	Product    string         `json:"product,omitempty" bson:"product,omitempty"`
	VideoPath  string         `json:"video_path,omitempty" bson:"video_path,omitempty"`
	Raw        map[string]any `json:"-" bson:"-"`
}

// Candidate is one collected item before dedup.
type Candidate struct {
	URL        string `json:"url"`
	ExternalID string `json:"id"`
	CreateTime int64  `json:"create_time,omitempty"`
}

type ItemStatus string

const (
	StatusSucceeded       ItemStatus = "succeeded"
	StatusExistsRemotely  ItemStatus = "exists_remotely"
	StatusAlreadyUploaded ItemStatus = "already_uploaded"
	StatusAlreadyFailed   ItemStatus = "already_failed"
	StatusFailed          ItemStatus = "failed"
)

// ItemResult is the outcome of one candidate in a batch.
type ItemResult struct {
	URL        string     `json:"url"`
	ExternalID string     `json:"id"`
	Status     ItemStatus `json:"status"`
	Kind       string     `json:"kind,omitempty"`
	Message    string     `json:"message,omitempty"`
	FileToken  string     `json:"file_token,omitempty"`
	RecordID   string     `json:"record_id,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

type Failure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Report summarizes one batch run.
type Report struct {
	RunID      string       `json:"run_id"`
	Source     string       `json:"source,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	URLs       []string     `json:"urls"`
	IDs        []string     `json:"ids"`
	Results    []ItemResult `json:"results"`
	Failed     []Failure    `json:"failed"`
	Attempted  int          `json:"attempted"`
	Succeeded  int          `json:"succeeded"`
	Skipped    int          `json:"skipped"`
	Error      string       `json:"error,omitempty"`
}

// IngestHistory is one persisted item outcome.
type IngestHistory struct {
	ID           string `bson:"_id"`
	RunID        string `bson:"run_id"`
	Source       string `bson:"source"`
	URL          string `bson:"url"`
	ExternalID   string `bson:"external_id"`
	Status       string `bson:"status"`
	ErrorMessage string `bson:"error_message,omitempty"`
	Duration     int64  `bson:"duration_ms"`
	Timestamp    int64  `bson:"timestamp"`
}

// Note is a parsed xiaohongshu note.
type Note struct {
	NoteID       string   `json:"note_id"`
	Title        string   `json:"title"`
	Desc         string   `json:"desc"`
	Type         string   `json:"type"`
	URL          string   `json:"url"`
	AuthorID     string   `json:"author_id"`
	AuthorName   string   `json:"author_name"`
	LikedCount   int64    `json:"liked_count"`
	CommentCount int64    `json:"comment_count"`
	CollectCount int64    `json:"collected_count"`
	PublishTime  int64    `json:"publish_time"`
	LastUpdate   int64    `json:"last_update_time"`
	CoverURL     string   `json:"cover_url,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	VideoURL     string   `json:"video_url,omitempty"`
	Tags         []string `json:"tags,omitempty"`

	CoverPath  string   `json:"cover_path,omitempty"`
	ImagePaths []string `json:"image_paths,omitempty"`
	VideoPath  string   `json:"video_path,omitempty"`
}

// Author is a parsed xiaohongshu profile.
type Author struct {
	UserID     string `json:"user_id"`
	Nickname   string `json:"nickname"`
	RedID      string `json:"red_id"`
	IPLocation string `json:"ip_location"`
	FansCount  int64  `json:"fans_count"`
	URL        string `json:"url"`
	ProfileURL string `json:"profile_url"`
	XsecToken  string `json:"xsec_token,omitempty"`
}

// Goods is a parsed xiaohongshu mall item.
type Goods struct {
	GoodsID          string `json:"goods_id"`
	Title            string `json:"title"`
	ShopName         string `json:"shop_name"`
	Price            string `json:"price"`
	SalesVolume      int64  `json:"sales_volume"`
	SellerUserID     string `json:"seller_user_id"`
	GoodsURL         string `json:"goods_url"`
	SellerProfileURL string `json:"seller_profile_url"`
	ImageURL         string `json:"image_url,omitempty"`
	ImagePath        string `json:"image_path,omitempty"`
}
