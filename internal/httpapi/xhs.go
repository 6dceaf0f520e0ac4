package httpapi

import (
	"net/http"
	"strings"

	"github.com/ernestzhang-11/StreamForge/internal/app"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
)

type xhsResponse struct {
	OK      bool               `json:"ok"`
	Success bool               `json:"success,omitempty"`
	Data    any                `json:"data,omitempty"`
	Feishu  *app.UploadOutcome `json:"feishu,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// xhsInput reads the url argument. On GET, note link parameters that the
// caller left unescaped arrive as sibling values and are put back.
func xhsInput(r *http.Request, reassemble bool) string {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		raw := strings.TrimSpace(q.Get("url"))
		if reassemble && raw != "" {
			raw = identifier.ReassembleSplitParams(raw, q)
		}
		return raw
	}
	var body struct {
		URL string `json:"url"`
	}
	decodeBody(r, &body)
	return strings.TrimSpace(body.URL)
}

// finish attaches the table outcome and writes the response: 200 with
// success when both parsing and upload went through, 500 otherwise.
func (h *Handler) finish(w http.ResponseWriter, what string, data any, out app.UploadOutcome, err error) {
	resp := xhsResponse{OK: true, Data: data, Feishu: &out}
	if err != nil || !out.OK {
		reason := out.Error
		if reason == "" && err != nil {
			reason = err.Error()
		}
		if reason == "" {
			reason = "未知错误"
		}
		resp.OK = false
		resp.Error = what + "解析成功，但上传到飞书失败: " + reason
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := xhsInput(r, true)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "缺少必需参数 url")
		return
	}
	id, err := h.Normalizer.Normalize(ctx, identifier.Note, raw)
	if err != nil {
		h.log.Warn(ctx, "note link rejected", "input", truncate(raw, 100), "error", err)
		writeError(w, http.StatusBadRequest, "无法解析小红书链接，请检查链接格式（需要包含笔记ID和xsec_token）")
		return
	}
	h.log.Info(ctx, "parsing note", "id", id.ID, "url", id.URL)

	note, err := h.XHS.Note(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, xhsResponse{Error: errorText(err)})
		return
	}
	if _, err := h.XHS.DownloadNote(ctx, &note); err != nil {
		writeJSON(w, http.StatusInternalServerError, xhsResponse{Data: []any{note}, Error: errorText(err)})
		return
	}

	out, err := h.XHSUpload.UploadNote(ctx, note)
	h.finish(w, "笔记", []any{note}, out, err)
}

func (h *Handler) parseAuthor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := xhsInput(r, false)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "缺少必需参数 url")
		return
	}
	id, err := h.Normalizer.Normalize(ctx, identifier.Author, raw)
	if err != nil {
		h.log.Warn(ctx, "author link rejected", "input", truncate(raw, 100), "error", err)
		writeError(w, http.StatusBadRequest, "无法从链接中提取用户ID")
		return
	}

	author, err := h.XHS.Author(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, xhsResponse{Error: errorText(err)})
		return
	}
	out, err := h.XHSUpload.UploadAuthor(ctx, author)
	h.finish(w, "作者信息", author, out, err)
}

func (h *Handler) parseGoods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := xhsInput(r, false)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "缺少必需参数 url")
		return
	}
	id, err := h.Normalizer.Normalize(ctx, identifier.Goods, raw)
	if err != nil {
		h.log.Warn(ctx, "goods link rejected", "input", truncate(raw, 100), "error", err)
		writeError(w, http.StatusBadRequest, "无法从链接中提取商品ID")
		return
	}

	goods, err := h.XHS.Goods(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, xhsResponse{Error: errorText(err)})
		return
	}
	out, err := h.XHSUpload.UploadGoods(ctx, goods)
	h.finish(w, "商品信息", goods, out, err)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
