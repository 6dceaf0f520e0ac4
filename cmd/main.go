package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ernestzhang-11/StreamForge/internal/app"
	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/httpapi"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/xhs"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup finishes before exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info", false).Error(context.Background(), "load config", "error", err)
		return 1
	}
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		log.Error(ctx, "build pipeline", "error", err)
		return 1
	}
	defer pipeline.Close()
	pipeline.WatchMapping(ctx)

	xhsClient := xhs.NewClient(xhs.Options{
		Cookie:      cfg.XHS.Cookie,
		UserAgent:   cfg.XHS.UserAgent,
		PageBase:    cfg.XHS.APIBase,
		MallBase:    cfg.XHS.MallBase,
		DownloadDir: cfg.Storage.DownloadDir,
		Timeout:     cfg.Logic.Timeout(),
		Logger:      log,
	})
	uploader := app.NewXHSUploader(pipeline.Client, app.XHSTables{
		Notes:   bitable.Table{AppToken: cfg.Feishu.XHSApp(), TableID: cfg.Feishu.XHSTableID},
		Authors: bitable.Table{AppToken: cfg.Feishu.AppToken, TableID: cfg.Feishu.AuthorTableID},
		Goods:   bitable.Table{AppToken: cfg.Feishu.AppToken, TableID: cfg.Feishu.GoodsTableID},
	}, log)

	deps := httpapi.Deps{
		Videos:     pipeline.Index,
		Fetcher:    pipeline.Fetcher,
		Publisher:  pipeline.Publisher,
		Backend:    pipeline.Client,
		VideoTable: pipeline.Table,
		Fields:     cfg.Feishu.Fields,
		Normalizer: identifier.NewNormalizer(identifier.NewResolver(cfg.XHS.Cookie, cfg.Logic.Timeout())),
		XHS:        xhsClient,
		XHSUpload:  uploader,
		TempDir:    cfg.Storage.DownloadDir,
		Logger:     log,
	}
	if pipeline.History != nil {
		deps.History = pipeline.History
	}
	server := httpapi.NewServer(httpapi.NewHandler(deps), cfg.Server.Port, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info(ctx, "signal received", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "server failed", "error", err)
			return 1
		}
		return 0
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown", "error", err)
		return 1
	}
	return 0
}
