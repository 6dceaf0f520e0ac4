package bitable

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

type partCall struct {
	UploadID string
	Seq      int
	Size     int
	Bytes    int
}

// fakeFeishu is an in-memory stand-in for the open platform endpoints the
// client uses.
type fakeFeishu struct {
	t *testing.T

	mu sync.Mutex

	authCode  int
	authCalls int

	records      map[string][]Record
	searchCode   int
	searchBodies []map[string]any

	createCode   int
	createCalls  int
	createFields []map[string]any

	uploadAllFailures int
	uploadAllCalls    int
	uploadAllForm     map[string]string
	uploadAllBytes    []byte

	blockSize     int64
	prepareCalls  int
	prepareBodies []map[string]any
	parts         []partCall
	// failPart fails the given seq during the given prepare round (1-based).
	failPartRound int
	failPartSeq   int
	failAllParts  bool
	finishBodies  []map[string]any
}

func newFakeFeishu(t *testing.T) (*fakeFeishu, *httptest.Server) {
	f := &fakeFeishu{
		t:         t,
		records:   map[string][]Record{},
		blockSize: 4,
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeFeishu) newClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:            srv.URL,
		AppID:              "cli_test",
		AppSecret:          "secret",
		HTTPClient:         srv.Client(),
		LargeFileThreshold: 8,
		Backoff:            failure.LinearBackoff(0),
		RequestsPerSecond:  1000,
		Burst:              100,
		ParentNode:         "app-token",
	})
}

func (f *fakeFeishu) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/auth/v3/tenant_access_token/internal":
		f.authCalls++
		if f.authCode != 0 {
			writeJSON(w, map[string]any{"code": f.authCode, "msg": "invalid app"})
			return
		}
		writeJSON(w, map[string]any{"code": 0, "tenant_access_token": "t-" + strconv.Itoa(f.authCalls), "expire": 7200})

	case strings.HasSuffix(path, "/records/search"):
		body := decodeBody(f.t, r)
		f.searchBodies = append(f.searchBodies, body)
		if f.searchCode != 0 {
			writeJSON(w, map[string]any{"code": f.searchCode, "msg": "search broke"})
			return
		}
		value := ""
		if conds, ok := body["filter"].(map[string]any)["conditions"].([]any); ok && len(conds) > 0 {
			if vals, ok := conds[0].(map[string]any)["value"].([]any); ok && len(vals) > 0 {
				value, _ = vals[0].(string)
			}
		}
		items := f.records[value]
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"total": len(items), "items": items}})

	case strings.HasSuffix(path, "/records"):
		f.createCalls++
		body := decodeBody(f.t, r)
		fields, _ := body["fields"].(map[string]any)
		f.createFields = append(f.createFields, fields)
		if f.createCode != 0 {
			writeJSON(w, map[string]any{"code": f.createCode, "msg": "create broke"})
			return
		}
		id := fmt.Sprintf("rec%d", f.createCalls)
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"record": map[string]any{"record_id": id, "fields": fields}}})

	case path == "/drive/v1/medias/upload_all":
		f.uploadAllCalls++
		form, data := readMultipart(f.t, r)
		f.uploadAllForm = form
		f.uploadAllBytes = data
		if f.uploadAllCalls <= f.uploadAllFailures {
			writeJSON(w, map[string]any{"code": 1061044, "msg": "parent node not exist"})
			return
		}
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"file_token": "box-small"}})

	case path == "/drive/v1/medias/upload_prepare":
		f.prepareCalls++
		body := decodeBody(f.t, r)
		f.prepareBodies = append(f.prepareBodies, body)
		size := int64(body["size"].(float64))
		blockNum := (size + f.blockSize - 1) / f.blockSize
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{
			"upload_id":  fmt.Sprintf("up-%d", f.prepareCalls),
			"block_size": f.blockSize,
			"block_num":  blockNum,
		}})

	case path == "/drive/v1/medias/upload_part":
		form, data := readMultipart(f.t, r)
		seq, _ := strconv.Atoi(form["seq"])
		size, _ := strconv.Atoi(form["size"])
		f.parts = append(f.parts, partCall{UploadID: form["upload_id"], Seq: seq, Size: size, Bytes: len(data)})
		if f.failAllParts || (f.failPartRound == f.prepareCalls && f.failPartSeq == seq) {
			writeJSON(w, map[string]any{"code": 1062008, "msg": "checksum mismatch"})
			return
		}
		writeJSON(w, map[string]any{"code": 0})

	case path == "/drive/v1/medias/upload_finish":
		body := decodeBody(f.t, r)
		f.finishBodies = append(f.finishBodies, body)
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"file_token": "box-large"}})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		t.Errorf("decode body: %v", err)
	}
	return out
}

func readMultipart(t *testing.T, r *http.Request) (map[string]string, []byte) {
	t.Helper()
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		t.Errorf("parse multipart: %v", err)
		return nil, nil
	}
	form := map[string]string{}
	for k, v := range r.MultipartForm.Value {
		form[k] = v[0]
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		t.Errorf("form file: %v", err)
		return form, nil
	}
	defer file.Close()
	form["__filename"] = header.Filename
	data, _ := io.ReadAll(file)
	return form, data
}
