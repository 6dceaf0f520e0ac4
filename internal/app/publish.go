package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

// ChannelPlaywright marks items collected by the keyword crawler. Those must
// carry a product title that the product mapping knows.
const ChannelPlaywright = "bit_playwright"

const (
	msgRecordCreated  = "飞书表格记录创建成功"
	msgRecordFailed   = "飞书表格记录创建失败"
	msgNoProduct      = "飞书表格记录创建失败，产品名称IS NONE"
	msgUnknownProduct = "飞书表格记录创建失败，未找到对应的产品名称 "
	msgNoFileToken    = "上传成功但未获取到 file_token"

	remarkFast = "速发"
	// legacyProductField always receives the mapped product name.
	legacyProductField = "品"
)

// Backend is the part of the table client the pipeline uses.
type Backend interface {
	SearchByID(ctx context.Context, table bitable.Table, field, id, token string, pageSize int) (bitable.SearchResult, error)
	UploadFile(ctx context.Context, req bitable.UploadRequest) (bitable.UploadResult, error)
	CreateRecord(ctx context.Context, table bitable.Table, fields map[string]any, token string) (*bitable.Record, error)
}

// ProductMapper maps extracted product titles to table values.
type ProductMapper interface {
	MapProduct(name string) string
	Matches(name string) bool
}

type noMapping struct{}

func (noMapping) MapProduct(name string) string { return name }
func (noMapping) Matches(string) bool           { return false }

// VideoIndex answers existence lookups against the video table.
type VideoIndex struct {
	Backend Backend
	Table   bitable.Table
	Field   string
}

func (v VideoIndex) Lookup(ctx context.Context, id string) (bitable.SearchResult, error) {
	return v.Backend.SearchByID(ctx, v.Table, v.Field, id, "", 1)
}

type PublishResult struct {
	Success   bool   `json:"success"`
	FileToken string `json:"file_token,omitempty"`
	Message   string `json:"message"`
	AwemeID   string `json:"aweme_id,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
}

// VideoPublisher uploads a downloaded video and creates its table row.
type VideoPublisher struct {
	backend Backend
	table   bitable.Table
	fields  config.FeishuFields
	mapping ProductMapper
	loc     *time.Location
	log     logging.Logger
}

func NewVideoPublisher(backend Backend, table bitable.Table, fields config.FeishuFields, mapping ProductMapper, log logging.Logger) *VideoPublisher {
	if mapping == nil {
		mapping = noMapping{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &VideoPublisher{
		backend: backend,
		table:   table,
		fields:  fields,
		mapping: mapping,
		loc:     time.Local,
		log:     log,
	}
}

// VideoRecordName is the attachment name of a video:
// {YYYY年MM月DD日HH_MM_SS}_{nickname}_{id}.mp4 in loc.
func VideoRecordName(a *models.Aweme, loc *time.Location) string {
	ts := time.Unix(a.CreateTime, 0).In(loc)
	return fmt.Sprintf("%s_%s_%s.mp4", ts.Format("2006年01月02日15_04_05"), a.Nickname, a.ID)
}

// Publish checks the channel rules, uploads the video file and creates the
// record. A failed result always comes with a non-nil error whose kind is
// UploadFailed or RecordCreateFailed, or AuthFailed from the backend.
func (p *VideoPublisher) Publish(ctx context.Context, a *models.Aweme, channel string) (PublishResult, error) {
	const op = "publish_video"

	res := PublishResult{AwemeID: a.ID}
	product := strings.TrimSpace(a.Product)

	if channel == ChannelPlaywright {
		if product == "" {
			res.Message = msgNoProduct
			return res, failure.Errorf(failure.RecordCreateFailed, op, "aweme %s has no product", a.ID)
		}
		if !p.mapping.Matches(product) {
			res.Message = msgUnknownProduct + product
			return res, failure.Errorf(failure.RecordCreateFailed, op, "no mapping for product %q", product)
		}
	}

	name := VideoRecordName(a, p.loc)
	up, err := p.backend.UploadFile(ctx, bitable.UploadRequest{
		Path:       a.VideoPath,
		Name:       name,
		ParentNode: p.table.AppToken,
	})
	if err != nil {
		res.Message = up.Message
		return res, err
	}
	if up.FileToken == "" {
		res.Message = msgNoFileToken
		return res, failure.Errorf(failure.UploadFailed, op, "no file token for %s", name)
	}
	res.FileToken = up.FileToken

	mapped := p.mapping.MapProduct(product)
	fields := map[string]any{
		p.fields.Remark:      remarkFast,
		p.fields.Title:       a.Desc,
		p.fields.ProductName: mapped,
		p.fields.VideoID:     a.ID,
		p.fields.Attachment:  bitable.FileAttachment(up.FileToken, name),
	}
	if mapped != "" && mapped != product {
		fields[legacyProductField] = mapped
	}

	rec, err := p.backend.CreateRecord(ctx, p.table, fields, up.AccessToken)
	if err != nil {
		res.Message = msgRecordFailed
		return res, err
	}

	res.Success = true
	res.Message = msgRecordCreated
	res.RecordID = rec.RecordID
	p.log.Info(ctx, "video published", "id", a.ID, "record_id", rec.RecordID, "product", mapped)
	return res, nil
}
