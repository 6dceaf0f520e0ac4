package bitable

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

type UploadRequest struct {
	Path       string
	Name       string
	ParentNode string
	ParentType string
	// MaxRetries is the number of whole attempts; 0 uses the client default.
	MaxRetries int
	Token      string
}

type UploadResult struct {
	Success   bool   `json:"success"`
	FileToken string `json:"file_token,omitempty"`
	Message   string `json:"message"`
	Size      int64  `json:"size"`
	Chunked   bool   `json:"chunked"`
	// AccessToken is the token the upload used, for reuse by the caller.
	AccessToken string `json:"-"`
}

type uploadAllResponse struct {
	apiResponse
	Data struct {
		FileToken string `json:"file_token"`
	} `json:"data"`
}

type prepareResponse struct {
	apiResponse
	Data struct {
		UploadID  string `json:"upload_id"`
		BlockSize int64  `json:"block_size"`
		BlockNum  int    `json:"block_num"`
	} `json:"data"`
}

type finishResponse struct {
	apiResponse
	Data struct {
		FileToken string `json:"file_token"`
	} `json:"data"`
}

// UploadFile sends a local file to the drive media store and returns its
// file token. Files up to the large-file threshold go in one multipart
// request; larger ones use prepare, ordered parts and finish. Each attempt
// starts over from the beginning, with linear backoff between attempts.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (UploadResult, error) {
	const op = "upload_file"

	info, err := os.Stat(req.Path)
	if err != nil || !info.Mode().IsRegular() {
		return UploadResult{Message: "file does not exist or is not a regular file"},
			failure.Errorf(failure.UploadFailed, op, "not a regular file: %s", req.Path)
	}
	size := info.Size()
	if size == 0 {
		return UploadResult{Message: "file is empty"},
			failure.Errorf(failure.UploadFailed, op, "empty file: %s", req.Path)
	}

	token, err := c.token(ctx, req.Token)
	if err != nil {
		return UploadResult{Message: "could not obtain access token", Size: size}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = filepath.Base(req.Path)
	}
	parentNode := strings.TrimSpace(req.ParentNode)
	if parentNode == "" {
		parentNode = c.parentNode
	}
	parentType := strings.TrimSpace(req.ParentType)
	if parentType == "" {
		parentType = c.parentType
	}
	attempts := req.MaxRetries
	if attempts <= 0 {
		attempts = c.maxRetries
	}

	u := upload{
		path:       req.Path,
		name:       name,
		size:       size,
		parentNode: parentNode,
		parentType: parentType,
		token:      token,
	}

	chunked := size > c.largeFileThreshold
	var fileToken string
	if chunked {
		fileToken, err = c.uploadLarge(ctx, u, attempts)
	} else {
		fileToken, err = c.uploadSmall(ctx, u, attempts)
	}
	if err != nil {
		c.log.Error(ctx, "bitable upload gave up", "file", name, "size", size, "chunked", chunked, "attempts", attempts, "err", err)
		return UploadResult{Message: "upload failed", Size: size, Chunked: chunked},
			failure.New(failure.UploadFailed, op, err)
	}

	c.log.Info(ctx, "bitable upload done", "file", name, "size", size, "chunked", chunked, "file_token", fileToken)
	return UploadResult{
		Success:     true,
		FileToken:   fileToken,
		Message:     "upload succeeded",
		Size:        size,
		Chunked:     chunked,
		AccessToken: token,
	}, nil
}

type upload struct {
	path       string
	name       string
	size       int64
	parentNode string
	parentType string
	token      string
}

func (c *Client) uploadSmall(ctx context.Context, u upload, attempts int) (string, error) {
	var fileToken string
	err := failure.Retry(ctx, attempts, c.backoff, func(ctx context.Context, attempt int) error {
		c.log.Info(ctx, "bitable upload_all", "file", u.name, "attempt", attempt+1, "of", attempts)

		f, err := os.Open(u.path)
		if err != nil {
			return failure.Retryable(errors.Wrap(err, "open"))
		}
		defer f.Close()

		fields := []formField{
			{"file_name", u.name},
			{"parent_type", u.parentType},
			{"parent_node", u.parentNode},
			{"size", strconv.FormatInt(u.size, 10)},
		}
		var resp uploadAllResponse
		if err := c.postMultipart(ctx, "upload_all", "/drive/v1/medias/upload_all", u.token, fields, u.name, f, &resp); err != nil {
			c.log.Warn(ctx, "bitable upload_all failed", "file", u.name, "attempt", attempt+1, "err", err)
			return failure.Retryable(err)
		}
		if resp.Data.FileToken == "" {
			return failure.Retryable(errors.New("upload_all: empty file_token"))
		}
		fileToken = resp.Data.FileToken
		return nil
	})
	return fileToken, err
}

func (c *Client) uploadLarge(ctx context.Context, u upload, attempts int) (string, error) {
	var fileToken string
	err := failure.Retry(ctx, attempts, c.backoff, func(ctx context.Context, attempt int) error {
		c.log.Info(ctx, "bitable chunked upload", "file", u.name, "size", u.size, "attempt", attempt+1, "of", attempts)

		token, err := c.uploadChunked(ctx, u)
		if err != nil {
			c.log.Warn(ctx, "bitable chunked upload attempt failed", "file", u.name, "attempt", attempt+1, "err", err)
			return failure.Retryable(err)
		}
		fileToken = token
		return nil
	})
	return fileToken, err
}

// uploadChunked runs one full prepare, parts, finish sequence.
func (c *Client) uploadChunked(ctx context.Context, u upload) (string, error) {
	var prep prepareResponse
	err := c.postJSON(ctx, "upload_prepare", "/drive/v1/medias/upload_prepare", u.token, map[string]any{
		"file_name":   u.name,
		"parent_type": u.parentType,
		"parent_node": u.parentNode,
		"size":        u.size,
	}, &prep)
	if err != nil {
		return "", err
	}
	uploadID, blockSize, blockNum := prep.Data.UploadID, prep.Data.BlockSize, prep.Data.BlockNum
	if uploadID == "" || blockSize <= 0 || blockNum <= 0 {
		return "", errors.Errorf("upload_prepare: bad plan upload_id=%q block_size=%d block_num=%d", uploadID, blockSize, blockNum)
	}

	if err := c.uploadParts(ctx, u, uploadID, blockSize, blockNum); err != nil {
		return "", err
	}

	var fin finishResponse
	err = c.postJSON(ctx, "upload_finish", "/drive/v1/medias/upload_finish", u.token, map[string]any{
		"upload_id": uploadID,
		"block_num": blockNum,
	}, &fin)
	if err != nil {
		return "", err
	}
	if fin.Data.FileToken == "" {
		return "", errors.New("upload_finish: empty file_token")
	}
	return fin.Data.FileToken, nil
}

// uploadParts sends blocks 0..blockNum-1 in order. The first failing block
// aborts the sequence.
func (c *Client) uploadParts(ctx context.Context, u upload, uploadID string, blockSize int64, blockNum int) error {
	f, err := os.Open(u.path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	buf := make([]byte, blockSize)
	for seq := 0; seq < blockNum; seq++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			if err == io.EOF {
				return errors.Errorf("upload_part: file ended before block %d of %d", seq, blockNum)
			}
			return errors.Wrapf(err, "upload_part: read block %d", seq)
		}

		fields := []formField{
			{"upload_id", uploadID},
			{"seq", strconv.Itoa(seq)},
			{"size", strconv.Itoa(n)},
		}
		var resp apiResponse
		partName := "part_" + strconv.Itoa(seq)
		if err := c.postMultipart(ctx, "upload_part", "/drive/v1/medias/upload_part", u.token, fields, partName, bytes.NewReader(buf[:n]), &resp); err != nil {
			return errors.Wrapf(err, "block %d/%d", seq+1, blockNum)
		}
		c.log.Debug(ctx, "bitable part sent", "upload_id", uploadID, "seq", seq, "size", n)
	}
	return nil
}
