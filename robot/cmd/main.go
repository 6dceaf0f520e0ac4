package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ernestzhang-11/StreamForge/internal/app"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	robot "github.com/ernestzhang-11/StreamForge/robot/internal/app"
	"github.com/ernestzhang-11/StreamForge/robot/internal/control"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so the pipeline is closed before exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info", false).Error(context.Background(), "load config", "error", err)
		return 1
	}
	// stdout carries the JSON report
	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := control.New(cancel)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			ctl.Stop()
		case <-ctx.Done():
		}
	}()
	go ctl.Loop(ctx, os.Stdin, os.Stderr)

	keywords, err := robot.ReadKeywords(cfg.Storage.KeywordsFile)
	if err != nil {
		log.Error(ctx, "read keywords", "error", err)
		return 1
	}
	if len(keywords) == 0 {
		log.Warn(ctx, "no keywords", "path", cfg.Storage.KeywordsFile)
	}

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		log.Error(ctx, "build pipeline", "error", err)
		return 1
	}
	defer pipeline.Close()
	pipeline.WatchMapping(ctx)

	orch, err := pipeline.Orchestrator("douyin", ctl.Sleep)
	if err != nil {
		log.Error(ctx, "open ledgers", "error", err)
		return 1
	}

	runner := robot.NewRunner(
		robot.FeedCollector{Crawler: cfg.Crawler, Logic: cfg.Logic, Log: log},
		orch, ctl, cfg.Logic.KeywordDelay(), log,
	)
	report, runErr := runner.Run(ctx, keywords)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error(ctx, "encode report", "error", err)
		return 1
	}
	fmt.Println(string(out))

	if path := cfg.Storage.ReportFile; path != "" {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err == nil {
			err = os.WriteFile(path, out, 0o644)
		}
		if err != nil {
			log.Error(ctx, "write report", "path", path, "error", err)
		}
	}

	if runErr != nil {
		log.Error(ctx, "run ended with error", "error", runErr)
		return 1
	}
	return 0
}
