// Package bitable talks to the Feishu open platform: tenant auth, bitable
// record search and creation, and drive media uploads that records attach.
//
// Every request waits on a shared rate limiter. Only file uploads retry;
// search degrades to "not found" on error and record creation is attempted
// exactly once because the backend does not deduplicate rows.
package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
)

const (
	DefaultBaseURL            = "https://open.feishu.cn/open-apis"
	DefaultLargeFileThreshold = 20 * 1024 * 1024
	DefaultParentType         = "bitable_file"
)

type Options struct {
	BaseURL    string
	AppID      string
	AppSecret  string
	HTTPClient *http.Client
	Logger     logging.Logger

	// Files above this size use the prepare/part/finish protocol.
	LargeFileThreshold int64
	MaxRetries         int
	Backoff            failure.Backoff

	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
	UploadTimeout     time.Duration

	// Upload target used when a request leaves it empty.
	ParentNode string
	ParentType string
}

type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	log        logging.Logger
	limiter    *rate.Limiter

	largeFileThreshold int64
	maxRetries         int
	backoff            failure.Backoff
	requestTimeout     time.Duration
	uploadTimeout      time.Duration
	parentNode         string
	parentType         string
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	threshold := opts.LargeFileThreshold
	if threshold <= 0 {
		threshold = DefaultLargeFileThreshold
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = failure.LinearBackoff(2 * time.Second)
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 300 * time.Second
	}
	parentType := strings.TrimSpace(opts.ParentType)
	if parentType == "" {
		parentType = DefaultParentType
	}
	return &Client{
		baseURL:            baseURL,
		appID:              opts.AppID,
		appSecret:          opts.AppSecret,
		httpClient:         httpClient,
		log:                log,
		limiter:            rate.NewLimiter(rate.Limit(rps), burst),
		largeFileThreshold: threshold,
		maxRetries:         maxRetries,
		backoff:            backoff,
		requestTimeout:     requestTimeout,
		uploadTimeout:      uploadTimeout,
		parentNode:         strings.TrimSpace(opts.ParentNode),
		parentType:         parentType,
	}
}

// APIError is a response whose body carried a non-zero code.
type APIError struct {
	Op     string
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: http=%d code=%d msg=%s", e.Op, e.Status, e.Code, e.Msg)
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (r apiResponse) status() (int, string) { return r.Code, r.Msg }

type coded interface {
	status() (int, string)
}

type formField struct {
	name  string
	value string
}

func (c *Client) postJSON(ctx context.Context, op, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "%s: encode", op)
	}
	return c.send(ctx, op, path, token, "application/json; charset=utf-8", body, c.requestTimeout, out)
}

func (c *Client) postMultipart(ctx context.Context, op, path, token string, fields []formField, fileName string, data io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return errors.Wrapf(err, "%s: write field %s", op, f.name)
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return errors.Wrapf(err, "%s: create file part", op)
	}
	if _, err := io.Copy(part, data); err != nil {
		return errors.Wrapf(err, "%s: copy file", op)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "%s: close multipart", op)
	}
	return c.send(ctx, op, path, token, w.FormDataContentType(), buf.Bytes(), c.uploadTimeout, out)
}

// send performs one POST and decodes the body into out. A non-zero code in
// the body is returned as *APIError.
func (c *Client) send(ctx context.Context, op, path, token, contentType string, body []byte, timeout time.Duration, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "%s: rate limit", op)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s", op)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return errors.Wrapf(readErr, "%s: read body", op)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Errorf("%s: http=%d undecodable body: %.200s", op, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if cr, ok := out.(coded); ok {
		if code, msg := cr.status(); code != 0 {
			return &APIError{Op: op, Status: resp.StatusCode, Code: code, Msg: msg}
		}
	}
	return nil
}
