package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

const (
	ActionCreated = "created"
	ActionSkipped = "skipped"
)

// UploadOutcome is what a note, author or goods upload reports back.
type UploadOutcome struct {
	OK       bool           `json:"ok"`
	RecordID string         `json:"record_id,omitempty"`
	Action   string         `json:"action,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type XHSTables struct {
	Notes   bitable.Table
	Authors bitable.Table
	Goods   bitable.Table
}

// XHSUploader writes parsed notes, authors and goods into their tables.
// Each upload first looks up its secondary key and skips rows that exist.
type XHSUploader struct {
	backend Backend
	tables  XHSTables
	log     logging.Logger
}

func NewXHSUploader(backend Backend, tables XHSTables, log logging.Logger) *XHSUploader {
	if log == nil {
		log = logging.Nop()
	}
	return &XHSUploader{backend: backend, tables: tables, log: log}
}

// existing returns a skipped outcome when key is already in table. A failed
// lookup is logged and treated as not found.
func (u *XHSUploader) existing(ctx context.Context, table bitable.Table, field, key, message string) (*UploadOutcome, error) {
	if key == "" {
		return nil, nil
	}
	found, err := u.backend.SearchByID(ctx, table, field, key, "", 1)
	if err != nil {
		return nil, err
	}
	if found.Degraded() {
		u.log.Warn(ctx, "lookup failed, uploading anyway", "field", field, "key", key, "error", found.Error)
		return nil, nil
	}
	if !found.Exists() {
		return nil, nil
	}
	u.log.Info(ctx, "row exists, skipping", "field", field, "key", key)
	return &UploadOutcome{OK: true, RecordID: found.FirstRecordID(), Action: ActionSkipped, Message: message}, nil
}

func (u *XHSUploader) create(ctx context.Context, table bitable.Table, fields map[string]any, token string) (UploadOutcome, error) {
	rec, err := u.backend.CreateRecord(ctx, table, fields, token)
	if err != nil {
		return UploadOutcome{Error: "创建飞书记录失败", Fields: fields}, err
	}
	return UploadOutcome{OK: true, RecordID: rec.RecordID, Action: ActionCreated, Fields: fields}, nil
}

// attach uploads one local file. A missing path or failed upload yields an
// empty token; only AuthFailed is returned as an error.
func (u *XHSUploader) attach(ctx context.Context, path, name, parent string, token *string) (string, error) {
	if path == "" {
		return "", nil
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		u.log.Warn(ctx, "attachment missing", "path", path)
		return "", nil
	}
	up, err := u.backend.UploadFile(ctx, bitable.UploadRequest{Path: path, Name: name, ParentNode: parent, Token: *token})
	if err != nil {
		if failure.KindOf(err) == failure.AuthFailed {
			return "", err
		}
		u.log.Warn(ctx, "attachment upload failed", "path", path, "error", err)
		return "", nil
	}
	if up.AccessToken != "" {
		*token = up.AccessToken
	}
	return up.FileToken, nil
}

// UploadNote creates the note row, attaching whichever of the cover, the
// images and the video were downloaded.
func (u *XHSUploader) UploadNote(ctx context.Context, n models.Note) (UploadOutcome, error) {
	if out, err := u.existing(ctx, u.tables.Notes, "笔记ID", n.NoteID, "笔记已存在"); out != nil || err != nil {
		if err != nil {
			return UploadOutcome{Error: err.Error()}, err
		}
		return *out, nil
	}

	title := n.Title
	if title == "" {
		title = n.Desc
	}
	if title == "" {
		title = "无标题"
	}

	parent := u.tables.Notes.AppToken
	var token string
	cover, err := u.attach(ctx, n.CoverPath, filepath.Base(n.CoverPath), parent, &token)
	if err != nil {
		return UploadOutcome{Error: err.Error()}, err
	}
	var images []string
	for i, p := range n.ImagePaths {
		tok, err := u.attach(ctx, p, fmt.Sprintf("image_%d.jpg", i), parent, &token)
		if err != nil {
			return UploadOutcome{Error: err.Error()}, err
		}
		if tok != "" {
			images = append(images, tok)
		}
	}
	video, err := u.attach(ctx, n.VideoPath, "video.mp4", parent, &token)
	if err != nil {
		return UploadOutcome{Error: err.Error()}, err
	}

	fields := map[string]any{
		"标题":   title,
		"笔记链接": n.URL,
		"笔记ID": n.NoteID,
		"作者":   n.AuthorName,
		"文案":   n.Desc,
		"点赞数":  strconv.FormatInt(n.LikedCount, 10),
		"评论数":  strconv.FormatInt(n.CommentCount, 10),
		"收藏数":  strconv.FormatInt(n.CollectCount, 10),
	}
	if n.PublishTime > 0 {
		fields["发布时间"] = n.PublishTime
	}
	if n.LastUpdate > 0 {
		fields["最后编辑时间"] = n.LastUpdate
	}
	if cover != "" {
		fields["封面"] = bitable.FileAttachment(cover, title+"_cover.jpg")
	}
	if video != "" {
		fields["视频"] = bitable.FileAttachment(video, title+".mp4")
	}
	if len(images) > 0 {
		var list []bitable.Attachment
		for i, tok := range images {
			list = append(list, bitable.FileAttachment(tok, fmt.Sprintf("%s_%d.jpg", title, i))...)
		}
		fields["图片"] = list
	}

	out, err := u.create(ctx, u.tables.Notes, fields, token)
	if err == nil {
		out.Message = "上传成功"
		u.log.Info(ctx, "note uploaded", "id", n.NoteID, "record_id", out.RecordID, "images", len(images))
	}
	return out, err
}

func (u *XHSUploader) UploadAuthor(ctx context.Context, a models.Author) (UploadOutcome, error) {
	if out, err := u.existing(ctx, u.tables.Authors, "账号ID", a.RedID, "作者已存在"); out != nil || err != nil {
		if err != nil {
			return UploadOutcome{Error: err.Error()}, err
		}
		return *out, nil
	}

	fields := map[string]any{"粉丝数": strconv.FormatInt(a.FansCount, 10)}
	if a.Nickname != "" {
		fields["账号名称"] = a.Nickname
	}
	if a.RedID != "" {
		fields["账号ID"] = a.RedID
	}
	if a.IPLocation != "" {
		fields["ip"] = a.IPLocation
	}
	if a.ProfileURL != "" {
		fields["主页链接"] = a.ProfileURL
	}

	out, err := u.create(ctx, u.tables.Authors, fields, "")
	if err == nil {
		u.log.Info(ctx, "author uploaded", "red_id", a.RedID, "record_id", out.RecordID)
	}
	return out, err
}

// UploadGoods creates the goods row. The product image is attached when it
// was downloaded and uploads cleanly; otherwise the row goes in without it.
func (u *XHSUploader) UploadGoods(ctx context.Context, g models.Goods) (UploadOutcome, error) {
	if out, err := u.existing(ctx, u.tables.Goods, "商品链接", g.GoodsURL, "商品已存在"); out != nil || err != nil {
		if err != nil {
			return UploadOutcome{Error: err.Error()}, err
		}
		return *out, nil
	}

	fields := map[string]any{
		"商品价格":         g.Price,
		"sales_volume": strconv.FormatInt(g.SalesVolume, 10),
	}
	if g.Title != "" {
		fields["商品标题"] = g.Title
	}
	if g.ShopName != "" {
		fields["店铺名称"] = g.ShopName
	}
	if g.GoodsURL != "" {
		fields["商品链接"] = g.GoodsURL
	}
	if g.SellerProfileURL != "" {
		fields["对标账号主页链接"] = g.SellerProfileURL
	}

	var token string
	img, err := u.attach(ctx, g.ImagePath, filepath.Base(g.ImagePath), u.tables.Goods.AppToken, &token)
	if err != nil {
		return UploadOutcome{Error: err.Error()}, err
	}
	if img != "" {
		fields["商品图片"] = []map[string]string{{"file_token": img}}
	}

	out, err := u.create(ctx, u.tables.Goods, fields, token)
	if err == nil {
		u.log.Info(ctx, "goods uploaded", "id", g.GoodsID, "record_id", out.RecordID)
	}
	return out, err
}
