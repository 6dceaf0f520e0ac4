package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultPath = "config.yaml"

type FeishuFields struct {
	Attachment  string `yaml:"attachment"`
	Remark      string `yaml:"remark"`
	VideoID     string `yaml:"video_id"`
	ProductName string `yaml:"product_name"`
	Title       string `yaml:"title"`
}

type FeishuConfig struct {
	BaseURL       string       `yaml:"base_url"`
	AppID         string       `yaml:"app_id"`
	AppSecret     string       `yaml:"app_secret"`
	AppToken      string       `yaml:"app_token"`
	TableID       string       `yaml:"table_id"`
	XHSAppToken   string       `yaml:"xhs_app_token"`
	XHSTableID    string       `yaml:"xhs_table_id"`
	AuthorTableID string       `yaml:"author_table_id"`
	GoodsTableID  string       `yaml:"goods_table_id"`
	ParentType    string       `yaml:"parent_type"`
	Fields        FeishuFields `yaml:"fields"`

	LargeFileThresholdMB int     `yaml:"large_file_threshold_mb"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryBackoffSec      int     `yaml:"retry_backoff_sec"`
	RequestsPerSecond    float64 `yaml:"requests_per_second"`
	TimeoutSec           int     `yaml:"timeout_sec"`
	UploadTimeoutSec     int     `yaml:"upload_timeout_sec"`
}

type StorageConfig struct {
	DownloadDir        string `yaml:"download_dir"`
	UploadedURLsFile   string `yaml:"uploaded_urls_file"`
	FailedURLsFile     string `yaml:"failed_urls_file"`
	KeywordsFile       string `yaml:"keywords_file"`
	ProductMappingFile string `yaml:"product_mapping_file"`
	ReportFile         string `yaml:"report_file"`
}

type CrawlerConfig struct {
	// ServiceBaseURL serves aweme detail JSON at /aweme/detail?aweme_id=.
	ServiceBaseURL string `yaml:"service_base_url"`
	// SearchURL is a template with {keyword}; each page returns search JSON.
	SearchURL string `yaml:"search_url"`
	Cookie    string `yaml:"cookie"`
	UserAgent string `yaml:"user_agent"`
}

type XHSConfig struct {
	Cookie    string `yaml:"cookie"`
	APIBase   string `yaml:"api_base"`
	MallBase  string `yaml:"mall_base"`
	UserAgent string `yaml:"user_agent"`
}

type LogicConfig struct {
	DelayMS               int    `yaml:"delay_ms"`
	KeywordDelayMS        int    `yaml:"keyword_delay_ms"`
	TimeoutSec            int    `yaml:"timeout_sec"`
	RecentDays            int    `yaml:"recent_days"`
	MaxVideos             int    `yaml:"max_videos"`
	CollectTimeoutSec     int    `yaml:"collect_timeout_sec"`
	QueueSize             int    `yaml:"queue_size"`
	MappingCheckSec       int    `yaml:"mapping_check_sec"`
	Channel               string `yaml:"channel"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`
	// Pages is how many search feed pages are requested per keyword.
	Pages    int `yaml:"pages"`
	PageSize int `yaml:"page_size"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type DBConfig struct {
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		History string `yaml:"history"`
	} `yaml:"collections"`
}

type Config struct {
	Feishu  FeishuConfig  `yaml:"feishu"`
	Storage StorageConfig `yaml:"storage"`
	Crawler CrawlerConfig `yaml:"crawler"`
	XHS     XHSConfig     `yaml:"xhs"`
	Logic   LogicConfig   `yaml:"logic"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
}

// LoadConfig reads a YAML file, then applies environment overrides and
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

// Load uses STREAMFORGE_CONFIG when set. Otherwise config.yaml is optional
// and a missing file means environment and defaults only.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("STREAMFORGE_CONFIG")); path != "" {
		return LoadConfig(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadConfig(DefaultPath)
	}
	return FromEnv(os.Getenv), nil
}

// FromEnv builds a config with no file.
func FromEnv(getenv func(string) string) *Config {
	var cfg Config
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Feishu.AppID, "FEISHU_APP_ID")
	set(&c.Feishu.AppSecret, "FEISHU_APP_SECRET")
	set(&c.Feishu.AppToken, "FEISHU_APP_TOKEN")
	set(&c.Feishu.TableID, "FEISHU_TABLE_ID")
	set(&c.Feishu.XHSAppToken, "FEISHU_XHS_APP_TOKEN")
	set(&c.Feishu.XHSTableID, "FEISHU_XHS_TABLE_ID")
	set(&c.Feishu.AuthorTableID, "FEISHU_AUTHOR_TABLE_ID")
	set(&c.Feishu.GoodsTableID, "FEISHU_GOODS_TABLE_ID")
	set(&c.Feishu.Fields.Attachment, "FEISHU_FIELD_ATTACHMENT")
	set(&c.Feishu.Fields.Remark, "FEISHU_FIELD_REMARK")
	set(&c.Feishu.Fields.VideoID, "FEISHU_FIELD_VIDEO_ID")
	set(&c.Feishu.Fields.ProductName, "FEISHU_FIELD_PRODUCT_NAME")
	set(&c.Feishu.Fields.Title, "FEISHU_FIELD_TITLE")
	set(&c.XHS.Cookie, "XHS_COOKIE")
	set(&c.Storage.DownloadDir, "DOWNLOAD_DIR")
	set(&c.Storage.UploadedURLsFile, "UPLOADED_URLS_FILE")
	set(&c.Storage.FailedURLsFile, "FAILED_URLS_FILE")
	set(&c.Storage.KeywordsFile, "KEYWORDS_FILE")
	set(&c.Storage.ProductMappingFile, "PRODUCT_MAPPING_FILE")
	set(&c.Crawler.ServiceBaseURL, "CRAWLER_SERVICE_BASE_URL")
	set(&c.Crawler.Cookie, "DOUYIN_COOKIE")
	set(&c.DB.Connection, "MONGO_URI")
	set(&c.Log.Level, "LOG_LEVEL")

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) applyDefaults() {
	str := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst <= 0 {
			*dst = def
		}
	}

	str(&c.Feishu.BaseURL, "https://open.feishu.cn/open-apis")
	str(&c.Feishu.ParentType, "bitable_file")
	str(&c.Feishu.Fields.Attachment, "视频")
	str(&c.Feishu.Fields.Remark, "备注")
	str(&c.Feishu.Fields.VideoID, "video_id")
	str(&c.Feishu.Fields.ProductName, "品")
	str(&c.Feishu.Fields.Title, "原爆款标题")
	num(&c.Feishu.LargeFileThresholdMB, 20)
	num(&c.Feishu.MaxRetries, 3)
	num(&c.Feishu.RetryBackoffSec, 2)
	num(&c.Feishu.TimeoutSec, 30)
	num(&c.Feishu.UploadTimeoutSec, 300)
	if c.Feishu.RequestsPerSecond <= 0 {
		c.Feishu.RequestsPerSecond = 10
	}

	str(&c.Storage.DownloadDir, "downloads")
	str(&c.Storage.UploadedURLsFile, "data/uploaded_urls.txt")
	str(&c.Storage.FailedURLsFile, "data/failed_urls.txt")
	str(&c.Storage.KeywordsFile, "keywords.txt")
	str(&c.Storage.ProductMappingFile, "product_mapping.json")

	str(&c.Crawler.UserAgent, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36")
	str(&c.XHS.UserAgent, c.Crawler.UserAgent)
	str(&c.XHS.APIBase, "https://www.xiaohongshu.com")
	str(&c.XHS.MallBase, "https://mall.xiaohongshu.com")

	num(&c.Logic.DelayMS, 2000)
	num(&c.Logic.KeywordDelayMS, 1000)
	num(&c.Logic.TimeoutSec, 15)
	num(&c.Logic.RecentDays, 3)
	num(&c.Logic.MaxVideos, 200)
	num(&c.Logic.CollectTimeoutSec, 15)
	num(&c.Logic.QueueSize, 256)
	num(&c.Logic.MappingCheckSec, 30)
	num(&c.Logic.MaxConcurrentRequests, 1)
	num(&c.Logic.Pages, 5)
	num(&c.Logic.PageSize, 10)

	num(&c.Server.Port, 5000)
	str(&c.Log.Level, "info")

	str(&c.DB.Database, "streamforge")
	str(&c.DB.Collections.History, "ingest_history")
}

func (l LogicConfig) Delay() time.Duration {
	return time.Duration(l.DelayMS) * time.Millisecond
}

func (l LogicConfig) KeywordDelay() time.Duration {
	return time.Duration(l.KeywordDelayMS) * time.Millisecond
}

func (l LogicConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

func (l LogicConfig) CollectTimeout() time.Duration {
	return time.Duration(l.CollectTimeoutSec) * time.Second
}

func (l LogicConfig) MappingCheckInterval() time.Duration {
	return time.Duration(l.MappingCheckSec) * time.Second
}

func (f FeishuConfig) LargeFileThreshold() int64 {
	return int64(f.LargeFileThresholdMB) * 1024 * 1024
}

func (f FeishuConfig) RetryBackoff() time.Duration {
	return time.Duration(f.RetryBackoffSec) * time.Second
}

func (f FeishuConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSec) * time.Second
}

func (f FeishuConfig) UploadTimeout() time.Duration {
	return time.Duration(f.UploadTimeoutSec) * time.Second
}

// XHSApp falls back to the video app when no notes app is configured.
func (f FeishuConfig) XHSApp() string {
	if f.XHSAppToken != "" {
		return f.XHSAppToken
	}
	return f.AppToken
}
