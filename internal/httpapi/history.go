package httpapi

import (
	"context"
	"net/http"

	"github.com/ernestzhang-11/StreamForge/internal/models"
)

// HistoryReader answers questions about past ingestion outcomes.
// *db.HistoryStore satisfies it.
type HistoryReader interface {
	SourceStats(ctx context.Context, source string) (map[string]int64, error)
	LastStatus(ctx context.Context, externalID string) (*models.IngestHistory, error)
}

const historyDisabled = "未启用历史记录（未配置 db.connection）"

func (h *Handler) historyStats(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusServiceUnavailable, historyDisabled)
		return
	}
	source := formValue(r, "source")
	if source == "" {
		source = "douyin"
	}
	stats, err := h.History.SourceStats(r.Context(), source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	var total int64
	for _, n := range stats {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": source, "stats": stats, "total": total})
}

func (h *Handler) historyLast(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusServiceUnavailable, historyDisabled)
		return
	}
	id := formValue(r, "video_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "缺少必需参数 video_id")
		return
	}
	last, err := h.History.LastStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	if last == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "found": false, "video_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"found":       true,
		"video_id":    id,
		"status":      last.Status,
		"error":       last.ErrorMessage,
		"run_id":      last.RunID,
		"url":         last.URL,
		"duration_ms": last.Duration,
		"timestamp":   last.Timestamp,
	})
}
