package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernestzhang-11/StreamForge/internal/config"
)

func TestNewHistory(t *testing.T) {
	h := NewHistory("run-1", "douyin", "https://www.douyin.com/video/1", "1", "failed", "boom", 1500*time.Millisecond)

	_, err := uuid.Parse(h.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", h.RunID)
	assert.Equal(t, "douyin", h.Source)
	assert.Equal(t, "1", h.ExternalID)
	assert.Equal(t, "boom", h.ErrorMessage)
	assert.EqualValues(t, 1500, h.Duration)
	assert.InDelta(t, time.Now().Unix(), h.Timestamp, 5)
}

// Runs against a real server when MONGO_URI is set.
func TestHistoryStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	var cfg config.DBConfig
	cfg.Connection = uri
	cfg.Database = "streamforge_test"
	cfg.Collections.History = "history_" + uuid.NewString()[:8]

	store, err := NewHistoryStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.history.Drop(context.Background())
		_ = store.Close()
	})

	ctx := context.Background()
	require.NoError(t, store.SaveHistory(ctx, NewHistory("r", "douyin", "u1", "1", "succeeded", "", time.Second)))
	require.NoError(t, store.SaveHistory(ctx, NewHistory("r", "douyin", "u2", "2", "failed", "x", time.Second)))
	require.NoError(t, store.SaveHistory(ctx, NewHistory("r", "douyin", "u3", "3", "failed", "y", time.Second)))

	stats, err := store.SourceStats(ctx, "douyin")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"succeeded": 1, "failed": 2}, stats)

	last, err := store.LastStatus(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "failed", last.Status)

	none, err := store.LastStatus(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}
