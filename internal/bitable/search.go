package bitable

import (
	"context"
	"net/url"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

// Table addresses one table inside a bitable app.
type Table struct {
	AppToken string
	TableID  string
}

func (t Table) recordsPath() string {
	return "/bitable/v1/apps/" + url.PathEscape(t.AppToken) + "/tables/" + url.PathEscape(t.TableID) + "/records"
}

type Record struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type Condition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type searchFilter struct {
	Conditions  []Condition `json:"conditions"`
	Conjunction string      `json:"conjunction"`
}

type searchRequest struct {
	Filter   searchFilter `json:"filter"`
	PageSize int          `json:"page_size"`
}

type searchResponse struct {
	apiResponse
	Data struct {
		Total int      `json:"total"`
		Items []Record `json:"items"`
	} `json:"data"`
}

// SearchResult is the outcome of an existence lookup. Error is set when the
// lookup itself failed, in which case Total is 0.
type SearchResult struct {
	Total int      `json:"total"`
	Items []Record `json:"items"`
	Error string   `json:"error,omitempty"`
}

func (r SearchResult) Exists() bool { return r.Total > 0 }

// Degraded reports a lookup that failed and was reported as not found.
func (r SearchResult) Degraded() bool { return r.Error != "" }

func (r SearchResult) FirstRecordID() string {
	if len(r.Items) == 0 {
		return ""
	}
	return r.Items[0].RecordID
}

// SearchByID looks for rows whose field equals id. Transport and API errors
// come back inside the result, not as an error; only a failed token fetch
// returns an error.
func (c *Client) SearchByID(ctx context.Context, table Table, field, id, token string, pageSize int) (SearchResult, error) {
	const op = "records_search"

	token, err := c.token(ctx, token)
	if err != nil {
		return SearchResult{Items: []Record{}}, err
	}
	if pageSize <= 0 {
		pageSize = 1
	}

	body := searchRequest{
		Filter: searchFilter{
			Conditions:  []Condition{{FieldName: field, Operator: "is", Value: []string{id}}},
			Conjunction: "and",
		},
		PageSize: pageSize,
	}

	var resp searchResponse
	if err := c.postJSON(ctx, op, table.recordsPath()+"/search", token, body, &resp); err != nil {
		c.log.Warn(ctx, "bitable search degraded to not found",
			"kind", failure.SearchDegraded.String(), "field", field, "id", id, "err", err)
		return SearchResult{Items: []Record{}, Error: err.Error()}, nil
	}

	items := resp.Data.Items
	if items == nil {
		items = []Record{}
	}
	return SearchResult{Total: resp.Data.Total, Items: items}, nil
}
