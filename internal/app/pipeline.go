package app

import (
	"context"
	"time"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/db"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/ledger"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/media"
)

// Pipeline holds the collaborators shared by the HTTP service and the batch
// runner, built once from configuration.
type Pipeline struct {
	Config    *config.Config
	Client    *bitable.Client
	Table     bitable.Table
	Index     VideoIndex
	Fetcher   *media.Fetcher
	Publisher *VideoPublisher
	Mapping   *config.MappingCache
	// History is nil unless db.connection is set.
	History *db.HistoryStore

	log logging.Logger
}

func NewPipeline(cfg *config.Config, log logging.Logger) (*Pipeline, error) {
	if log == nil {
		log = logging.Nop()
	}
	f := cfg.Feishu

	client := bitable.New(bitable.Options{
		BaseURL:            f.BaseURL,
		AppID:              f.AppID,
		AppSecret:          f.AppSecret,
		Logger:             log,
		LargeFileThreshold: f.LargeFileThreshold(),
		MaxRetries:         f.MaxRetries,
		Backoff:            failure.LinearBackoff(f.RetryBackoff()),
		RequestsPerSecond:  f.RequestsPerSecond,
		RequestTimeout:     f.Timeout(),
		UploadTimeout:      f.UploadTimeout(),
		ParentNode:         f.AppToken,
		ParentType:         f.ParentType,
	})
	table := bitable.Table{AppToken: f.AppToken, TableID: f.TableID}
	mapping := config.NewMappingCache(cfg.Storage.ProductMappingFile, cfg.Logic.MappingCheckInterval(), log)

	httpClient := media.NewHTTPClient(cfg.Logic.Timeout())
	fetcher := media.NewFetcher(
		media.NewDetailFetcher(cfg.Crawler.ServiceBaseURL, cfg.Crawler.Cookie, httpClient),
		media.NewDownloader(nil, "https://www.douyin.com/", log),
		cfg.Storage.DownloadDir,
		log,
	)

	p := &Pipeline{
		Config:    cfg,
		Client:    client,
		Table:     table,
		Index:     VideoIndex{Backend: client, Table: table, Field: f.Fields.VideoID},
		Fetcher:   fetcher,
		Publisher: NewVideoPublisher(client, table, f.Fields, mapping, log),
		Mapping:   mapping,
		log:       log,
	}

	if cfg.DB.Connection != "" {
		history, err := db.NewHistoryStore(cfg.DB, log)
		if err != nil {
			return nil, failure.New(failure.Internal, "history_store", err)
		}
		p.History = history
	}
	return p, nil
}

// WatchMapping keeps the product mapping fresh until ctx ends.
func (p *Pipeline) WatchMapping(ctx context.Context) {
	go func() {
		if err := p.Mapping.Watch(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn(ctx, "product mapping watch stopped", "error", err)
		}
	}()
}

// Orchestrator opens the URL ledgers and returns a batch orchestrator for
// source. A nil sleep uses a plain timer between items.
func (p *Pipeline) Orchestrator(source string, sleep func(context.Context, time.Duration) error) (*Orchestrator, error) {
	uploaded, err := ledger.Open(p.Config.Storage.UploadedURLsFile)
	if err != nil {
		return nil, failure.New(failure.Internal, "open_uploaded_ledger", err)
	}
	failed, err := ledger.Open(p.Config.Storage.FailedURLsFile)
	if err != nil {
		return nil, failure.New(failure.Internal, "open_failed_ledger", err)
	}

	opts := Options{
		Source:  source,
		Channel: p.Config.Logic.Channel,
		Pace:    p.Config.Logic.Delay(),
		Limit:   p.Config.Logic.MaxVideos,
		Logger:  p.log,
		Sleep:   sleep,
	}
	if p.History != nil {
		opts.History = p.History
	}
	return NewOrchestrator(p.Index, p.Fetcher, p.Publisher, uploaded, failed, opts), nil
}

func (p *Pipeline) Close() error {
	if p.History == nil {
		return nil
	}
	return p.History.Close()
}
