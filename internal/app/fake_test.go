package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/ledger"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

type createCall struct {
	Table  bitable.Table
	Fields map[string]any
	Token  string
}

// fakeBackend keeps rows in memory, keyed by table and field value.
type fakeBackend struct {
	mu sync.Mutex

	rows     map[string]string // table/field/value -> record id
	searches int
	degraded bool
	authErr  error

	uploads     []bitable.UploadRequest
	uploadErr   error
	emptyToken  bool
	creates     []createCall
	createErr   error
	nextRecord  int
	indexFields map[string]string // table id -> field to index on create
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: map[string]string{}, indexFields: map[string]string{}}
}

func rowKey(table bitable.Table, field, value string) string {
	return table.TableID + "/" + field + "/" + value
}

func (f *fakeBackend) put(table bitable.Table, field, value, recordID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rowKey(table, field, value)] = recordID
}

func (f *fakeBackend) SearchByID(_ context.Context, table bitable.Table, field, id, _ string, _ int) (bitable.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.authErr != nil {
		return bitable.SearchResult{Items: []bitable.Record{}}, f.authErr
	}
	if f.degraded {
		return bitable.SearchResult{Items: []bitable.Record{}, Error: "connection reset"}, nil
	}
	if rec, ok := f.rows[rowKey(table, field, id)]; ok {
		return bitable.SearchResult{Total: 1, Items: []bitable.Record{{RecordID: rec}}}, nil
	}
	return bitable.SearchResult{Items: []bitable.Record{}}, nil
}

func (f *fakeBackend) UploadFile(_ context.Context, req bitable.UploadRequest) (bitable.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	if f.uploadErr != nil {
		return bitable.UploadResult{Message: "upload failed"}, f.uploadErr
	}
	res := bitable.UploadResult{Success: true, Message: "upload succeeded", AccessToken: "t-upload"}
	if !f.emptyToken {
		res.FileToken = "file-" + filepath.Base(req.Path)
	}
	return res, nil
}

func (f *fakeBackend) CreateRecord(_ context.Context, table bitable.Table, fields map[string]any, token string) (*bitable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{Table: table, Fields: fields, Token: token})
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextRecord++
	rec := &bitable.Record{RecordID: "rec" + strconv.Itoa(f.nextRecord)}
	if field, ok := f.indexFields[table.TableID]; ok {
		if v, ok := fields[field].(string); ok {
			f.rows[rowKey(table, field, v)] = rec.RecordID
		}
	}
	return rec, nil
}

// fakeFetcher writes a small video file per id.
type fakeFetcher struct {
	t     *testing.T
	dir   string
	calls []string
	fail  map[string]error
	// product per id
	products map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (*models.Aweme, error) {
	f.calls = append(f.calls, id)
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, id+".mp4")
	require.NoError(f.t, os.WriteFile(path, []byte("video"), 0o644))
	return &models.Aweme{
		ID:         id,
		Desc:       "desc " + id,
		CreateTime: 1700000000,
		Nickname:   "nick",
		Product:    f.products[id],
		VideoPath:  path,
	}, nil
}

type fakeHistory struct {
	saved []*models.IngestHistory
}

func (h *fakeHistory) SaveHistory(_ context.Context, rec *models.IngestHistory) error {
	h.saved = append(h.saved, rec)
	return nil
}

type fakeMapping map[string]string

func (m fakeMapping) MapProduct(name string) string {
	for k, v := range m {
		if name != "" && strings.Contains(name, k) {
			return v
		}
	}
	return name
}

func (m fakeMapping) Matches(name string) bool {
	for k := range m {
		if name != "" && strings.Contains(name, k) {
			return true
		}
	}
	return false
}

var videoTable = bitable.Table{AppToken: "app", TableID: "tbl-video"}

type harness struct {
	backend  *fakeBackend
	fetcher  *fakeFetcher
	history  *fakeHistory
	uploaded *ledger.Store
	failed   *ledger.Store
	sleeps   []time.Duration
	orch     *Orchestrator
}

func newHarness(t *testing.T, channel string, mapping ProductMapper) *harness {
	t.Helper()
	dir := t.TempDir()
	uploaded, err := ledger.Open(filepath.Join(dir, "data", "uploaded_urls.txt"))
	require.NoError(t, err)
	failed, err := ledger.Open(filepath.Join(dir, "data", "failed_urls.txt"))
	require.NoError(t, err)

	h := &harness{
		backend:  newFakeBackend(),
		fetcher:  &fakeFetcher{t: t, dir: t.TempDir(), fail: map[string]error{}, products: map[string]string{}},
		history:  &fakeHistory{},
		uploaded: uploaded,
		failed:   failed,
	}
	h.backend.indexFields[videoTable.TableID] = "video_id"

	fields := testFields()
	h.orch = NewOrchestrator(
		VideoIndex{Backend: h.backend, Table: videoTable, Field: fields.VideoID},
		h.fetcher,
		NewVideoPublisher(h.backend, videoTable, fields, mapping, nil),
		uploaded, failed,
		Options{
			Source:  "douyin",
			Channel: channel,
			Pace:    2 * time.Second,
			History: h.history,
			Sleep: func(ctx context.Context, d time.Duration) error {
				h.sleeps = append(h.sleeps, d)
				return ctx.Err()
			},
		},
	)
	return h
}

func authError() error {
	return failure.Errorf(failure.AuthFailed, "tenant_access_token", "code 99991663")
}

func testFields() config.FeishuFields {
	return config.FeishuFields{
		Attachment:  "视频",
		Remark:      "备注",
		VideoID:     "video_id",
		ProductName: "产品",
		Title:       "原爆款标题",
	}
}
