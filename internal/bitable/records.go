package bitable

import (
	"context"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

// Attachment references an uploaded file inside an attachment field.
type Attachment struct {
	FileToken string `json:"file_token"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

func FileAttachment(fileToken, name string) []Attachment {
	return []Attachment{{FileToken: fileToken, Name: name, Type: "file"}}
}

type createResponse struct {
	apiResponse
	Data struct {
		Record Record `json:"record"`
	} `json:"data"`
}

// CreateRecord inserts one row. It is never retried.
func (c *Client) CreateRecord(ctx context.Context, table Table, fields map[string]any, token string) (*Record, error) {
	const op = "records_create"

	token, err := c.token(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp createResponse
	if err := c.postJSON(ctx, op, table.recordsPath(), token, map[string]any{"fields": fields}, &resp); err != nil {
		c.log.Warn(ctx, "bitable create record failed", "table", table.TableID, "err", err)
		return nil, failure.New(failure.RecordCreateFailed, op, err)
	}
	rec := resp.Data.Record
	c.log.Info(ctx, "bitable record created", "table", table.TableID, "record_id", rec.RecordID)
	return &rec, nil
}
