package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

const douyinReferer = "https://www.douyin.com/"

var detailKeys = jsonwalk.NewWalker("aweme_detail")

// VideoFileName is the local name of a downloaded video.
func VideoFileName(id string, createTime int64) string {
	return fmt.Sprintf("%s_%d_video.mp4", id, createTime)
}

// DetailFetcher asks the crawler service for a video's detail payload.
type DetailFetcher struct {
	baseURL string
	cookie  string
	client  *http.Client
}

func NewDetailFetcher(baseURL, cookie string, client *http.Client) *DetailFetcher {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &DetailFetcher{baseURL: strings.TrimRight(baseURL, "/"), cookie: cookie, client: client}
}

// Detail returns the parsed video for id.
func (f *DetailFetcher) Detail(ctx context.Context, id string) (models.Aweme, error) {
	const op = "fetch_detail"

	if f.baseURL == "" {
		return models.Aweme{}, failure.Errorf(failure.DownloadFailed, op, "crawler service base url not configured")
	}
	endpoint := f.baseURL + "/aweme/detail?aweme_id=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Aweme{}, failure.New(failure.DownloadFailed, op, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Referer", douyinReferer)
	req.Header.Set("Accept", "application/json")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return models.Aweme{}, failure.New(failure.DownloadFailed, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Aweme{}, failure.New(failure.DownloadFailed, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Aweme{}, failure.Errorf(failure.DownloadFailed, op, "HTTP %d from crawler service", resp.StatusCode)
	}

	v, err := jsonwalk.Decode(raw)
	if err != nil {
		return models.Aweme{}, failure.New(failure.DownloadFailed, op, err)
	}
	detail := findDetail(v)
	if detail == nil {
		return models.Aweme{}, failure.Errorf(failure.DownloadFailed, op, "no aweme_detail for %s", id)
	}

	a := ParseAweme(detail)
	if a.ID == "" {
		a.ID = id
	}
	if a.PlayURL == "" {
		return a, failure.Errorf(failure.DownloadFailed, op, "no play address for %s", id)
	}
	return a, nil
}

func findDetail(v any) map[string]any {
	for _, m := range detailKeys.Collect(v) {
		if obj := jsonwalk.Object(m.Value); obj != nil {
			return obj
		}
	}
	if obj := jsonwalk.Object(v); obj != nil && obj["aweme_id"] != nil {
		return obj
	}
	return nil
}

// Fetcher resolves a video id to a downloaded file.
type Fetcher struct {
	details    *DetailFetcher
	downloader *Downloader
	dir        string
	log        logging.Logger
}

func NewFetcher(details *DetailFetcher, downloader *Downloader, dir string, log logging.Logger) *Fetcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Fetcher{details: details, downloader: downloader, dir: dir, log: log}
}

// Fetch downloads the video for id into the download directory and returns
// its metadata with VideoPath set.
func (f *Fetcher) Fetch(ctx context.Context, id string) (*models.Aweme, error) {
	a, err := f.details.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, VideoFileName(a.ID, a.CreateTime))
	n, err := f.downloader.Download(ctx, a.PlayURL, path)
	if err != nil {
		return nil, err
	}
	a.VideoPath = path
	f.log.Info(ctx, "video downloaded", "id", a.ID, "path", path, "bytes", n)
	return &a, nil
}
