package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
)

const (
	MaxHops          = 15
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
)

// NewHTTPClient builds the client used for detail and media requests.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxHops {
				return fmt.Errorf("stopped after %d redirects", MaxHops)
			}
			return nil
		},
	}
}

// Downloader streams remote media into local files.
type Downloader struct {
	client    *http.Client
	userAgent string
	referer   string
	log       logging.Logger
}

func NewDownloader(client *http.Client, referer string, log logging.Logger) *Downloader {
	if client == nil {
		client = NewHTTPClient(5 * time.Minute)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Downloader{client: client, userAgent: DefaultUserAgent, referer: referer, log: log}
}

// Download writes src to dst and returns the byte count. The file appears
// under dst only once fully written; an empty body is an error.
func (d *Downloader) Download(ctx context.Context, src, dst string) (int64, error) {
	const op = "download"

	if src == "" {
		return 0, failure.Errorf(failure.DownloadFailed, op, "empty media url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, failure.New(failure.DownloadFailed, op, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	if d.referer != "" {
		req.Header.Set("Referer", d.referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, failure.New(failure.DownloadFailed, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, failure.Errorf(failure.DownloadFailed, op, "HTTP %d for %s", resp.StatusCode, src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, failure.New(failure.DownloadFailed, op, errors.Wrap(err, "create download dir"))
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, failure.New(failure.DownloadFailed, op, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, failure.New(failure.DownloadFailed, op, errors.Wrapf(err, "write %s", dst))
	}
	if n == 0 {
		return 0, failure.Errorf(failure.DownloadFailed, op, "empty body for %s", src)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, failure.New(failure.DownloadFailed, op, err)
	}

	d.log.Debug(ctx, "media downloaded", "path", dst, "bytes", n)
	return n, nil
}
