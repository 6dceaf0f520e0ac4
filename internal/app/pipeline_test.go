package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
)

func TestNewPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := config.FromEnv(func(key string) string {
		switch key {
		case "FEISHU_APP_TOKEN":
			return "app"
		case "FEISHU_TABLE_ID":
			return "tbl"
		}
		return ""
	})
	cfg.Storage.UploadedURLsFile = filepath.Join(dir, "data", "uploaded_urls.txt")
	cfg.Storage.FailedURLsFile = filepath.Join(dir, "data", "failed_urls.txt")
	cfg.Storage.ProductMappingFile = filepath.Join(dir, "product_mapping.json")

	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.History)
	assert.Equal(t, bitable.Table{AppToken: "app", TableID: "tbl"}, p.Table)
	assert.Equal(t, "video_id", p.Index.Field)

	orch, err := p.Orchestrator("douyin", nil)
	require.NoError(t, err)
	report, err := orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, "douyin", report.Source)
}
