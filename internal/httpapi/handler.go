package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/app"
	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

const maxUploadMemory = 32 << 20

// Normalizer turns share text into an identity.
type Normalizer interface {
	Normalize(ctx context.Context, target identifier.Target, text string) (identifier.Identity, error)
}

// XHSSource fetches and parses xiaohongshu content.
type XHSSource interface {
	Note(ctx context.Context, id identifier.Identity) (models.Note, error)
	DownloadNote(ctx context.Context, n *models.Note) (string, error)
	Author(ctx context.Context, id identifier.Identity) (models.Author, error)
	Goods(ctx context.Context, id identifier.Identity) (models.Goods, error)
}

// XHSPublisher writes parsed xiaohongshu content into the tables.
type XHSPublisher interface {
	UploadNote(ctx context.Context, n models.Note) (app.UploadOutcome, error)
	UploadAuthor(ctx context.Context, a models.Author) (app.UploadOutcome, error)
	UploadGoods(ctx context.Context, g models.Goods) (app.UploadOutcome, error)
}

type Deps struct {
	Videos     app.ExistenceChecker
	Fetcher    app.MediaFetcher
	Publisher  app.Publisher
	Backend    app.Backend
	VideoTable bitable.Table
	Fields     config.FeishuFields
	Normalizer Normalizer
	XHS        XHSSource
	XHSUpload  XHSPublisher
	// History is optional; the /history routes answer 503 without it.
	History HistoryReader
	// TempDir holds files received by upload_file until they are sent on.
	TempDir string
	Logger  logging.Logger
}

type Handler struct {
	Deps
	log logging.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.TempDir == "" {
		d.TempDir = os.TempDir()
	}
	return &Handler{Deps: d, log: d.Logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("POST /feishu/upload_record", h.uploadRecord)
	mux.HandleFunc("GET /feishu/check_video_exists", h.checkVideoExists)
	mux.HandleFunc("POST /feishu/check_video_exists", h.checkVideoExists)
	mux.HandleFunc("POST /feishu/upload_file", h.uploadFile)

	mux.HandleFunc("GET /history/stats", h.historyStats)
	mux.HandleFunc("GET /history/last", h.historyLast)

	mux.HandleFunc("GET /xhs/parse_note", h.parseNote)
	mux.HandleFunc("POST /xhs/parse_note", h.parseNote)
	mux.HandleFunc("GET /xhs/parse_author", h.parseAuthor)
	mux.HandleFunc("POST /xhs/parse_author", h.parseAuthor)
	mux.HandleFunc("GET /xhs/parse_goods", h.parseGoods)
	mux.HandleFunc("POST /xhs/parse_goods", h.parseGoods)
}

// Routes is the full handler chain served by Server.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return withRequestLog(h.log, withCORS(withRecover(h.log, mux)))
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// errorText renders err as "<Type>: <message>".
func errorText(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return fmt.Sprintf("%T: %v", err, err)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeBody reads a JSON object leniently; a bad body reads as empty.
func decodeBody(r *http.Request, v any) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return
	}
	_ = json.Unmarshal(body, v)
}

type uploadRecordRequest struct {
	PageURL any    `json:"page_url"`
	Channel string `json:"channel"`
}

func (h *Handler) uploadRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req uploadRecordRequest
	decodeBody(r, &req)
	pageURL, _ := req.PageURL.(string)
	if pageURL == "" {
		writeError(w, http.StatusBadRequest, "缺少或非法的 page_url")
		return
	}
	if req.Channel != "" {
		h.log.Info(ctx, "upload_record channel", "channel", req.Channel)
	}
	if !identifier.IsDouyinPage(pageURL) {
		writeError(w, http.StatusBadRequest, "链接不合法，只支持抖音页面URL")
		return
	}
	id, ok := identifier.VideoID(pageURL)
	if !ok {
		writeError(w, http.StatusBadRequest, "无法从链接提取 video_id")
		return
	}

	found, err := h.Videos.Lookup(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	if found.Exists() {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"message": "该视频已上传过（根据 video_id 命中）",
			"exists":  true,
			"records": found.Items,
			"total":   found.Total,
		})
		return
	}

	aweme, err := h.Fetcher.Fetch(ctx, id)
	if err != nil {
		h.log.Error(ctx, "upload_record download failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}

	res, err := h.Publisher.Publish(ctx, aweme, req.Channel)
	if err != nil {
		h.log.Warn(ctx, "upload_record publish failed", "id", id, "error", err)
		msg := res.Message
		if msg == "" {
			msg = "视频上传失败"
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": msg, "result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": res.Message, "result": res})
}

// formValue reads key from the query on GET, and from a JSON body or form
// on POST.
func formValue(r *http.Request, key string) string {
	if r.Method == http.MethodGet {
		return strings.TrimSpace(r.URL.Query().Get(key))
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		decodeBody(r, &body)
		v, _ := body[key].(string)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r.FormValue(key))
}

func (h *Handler) checkVideoExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := formValue(r, "video_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "缺少必需参数 video_id")
		return
	}

	found, err := h.Videos.Lookup(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	body := map[string]any{"ok": true, "success": true, "exists": found.Exists(), "video_id": id}
	if found.Exists() {
		body["record_id"] = found.FirstRecordID()
	}
	h.log.Info(ctx, "video existence checked", "id", id, "exists", found.Exists())
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "缺少必需参数 file")
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "缺少必需参数 file")
		return
	}
	defer file.Close()
	if _, ok := r.MultipartForm.Value["video_id"]; !ok {
		writeError(w, http.StatusBadRequest, "缺少必需参数 video_id")
		return
	}
	id := strings.TrimSpace(r.FormValue("video_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "video_id 不能为空")
		return
	}
	name := filepath.Base(header.Filename)
	if header.Filename == "" || name == "." || name == "/" {
		writeError(w, http.StatusBadRequest, "未选择文件")
		return
	}

	found, err := h.Videos.Lookup(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	if found.Exists() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("video_id %s 已存在，record_id: %s", id, found.FirstRecordID()))
		return
	}

	tmp, err := saveTemp(h.TempDir, name, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorText(err))
		return
	}
	defer os.Remove(tmp)

	up, err := h.Backend.UploadFile(ctx, bitable.UploadRequest{Path: tmp, Name: name, ParentNode: h.VideoTable.AppToken})
	if err != nil || up.FileToken == "" {
		h.log.Warn(ctx, "upload_file drive upload failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "文件上传到飞书云盘失败")
		return
	}

	fields := map[string]any{
		h.Fields.VideoID:    id,
		h.Fields.Attachment: bitable.FileAttachment(up.FileToken, name),
	}
	rec, err := h.Backend.CreateRecord(ctx, h.VideoTable, fields, up.AccessToken)
	if err != nil {
		h.log.Warn(ctx, "upload_file record failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "创建飞书记录失败")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"success":    true,
		"record_id":  rec.RecordID,
		"file_token": up.FileToken,
		"video_id":   id,
	})
}

func saveTemp(dir, name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "upload-*-"+strings.ReplaceAll(name, "*", "_"))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
