package xhs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

const (
	NoteTypeImage = "图文"
	NoteTypeVideo = "视频"

	videoCDN = "https://sns-video-bd.xhscdn.com/"
)

var reUnsafeName = regexp.MustCompile(`[\\/:*?"<>|]+`)

// ParseNoteState reads a note out of a decoded page state. When noteID is
// empty the first note in the detail map is used.
func ParseNoteState(state any, noteID string) (models.Note, bool) {
	details := jsonwalk.Object(jsonwalk.Get(state, "note.noteDetailMap"))
	var entry map[string]any
	if noteID != "" {
		entry = jsonwalk.Object(details[noteID])
	}
	if entry == nil {
		for _, v := range details {
			if e := jsonwalk.Object(v); e != nil && jsonwalk.Object(e["note"]) != nil {
				entry = e
				break
			}
		}
	}
	note := jsonwalk.Object(entry["note"])
	if note == nil {
		return models.Note{}, false
	}

	n := models.Note{
		NoteID:       jsonwalk.FirstString(note, "noteId", "id"),
		Title:        jsonwalk.String(note["title"]),
		Desc:         jsonwalk.String(note["desc"]),
		AuthorID:     jsonwalk.String(jsonwalk.Get(note, "user.userId")),
		AuthorName:   jsonwalk.FirstString(jsonwalk.Object(note["user"]), "nickname", "nickName"),
		LikedCount:   count(jsonwalk.Get(note, "interactInfo.likedCount")),
		CommentCount: count(jsonwalk.Get(note, "interactInfo.commentCount")),
		CollectCount: count(jsonwalk.Get(note, "interactInfo.collectedCount")),
		PublishTime:  millis(note["time"]),
		LastUpdate:   millis(note["lastUpdateTime"]),
	}
	if n.NoteID == "" {
		n.NoteID = noteID
	}
	if jsonwalk.String(note["type"]) == "normal" {
		n.Type = NoteTypeImage
	} else {
		n.Type = NoteTypeVideo
	}

	for _, img := range jsonwalk.Array(note["imageList"]) {
		if u := imageURL(jsonwalk.Object(img)); u != "" {
			n.ImageURLs = append(n.ImageURLs, u)
		}
	}
	if len(n.ImageURLs) > 0 {
		n.CoverURL = n.ImageURLs[0]
	}
	if key := jsonwalk.String(jsonwalk.Get(note, "video.consumer.originVideoKey")); key != "" {
		n.VideoURL = videoCDN + key
	}
	for _, tag := range jsonwalk.Array(note["tagList"]) {
		if name := jsonwalk.String(jsonwalk.Get(tag, "name")); name != "" {
			n.Tags = append(n.Tags, name)
		}
	}
	return n, true
}

func imageURL(img map[string]any) string {
	if img == nil {
		return ""
	}
	if u := jsonwalk.FirstString(img, "urlDefault", "url_default"); u != "" {
		return u
	}
	infos := jsonwalk.Array(img["infoList"])
	if len(infos) > 1 {
		if u := jsonwalk.String(jsonwalk.Get(infos[1], "url")); u != "" {
			return u
		}
	}
	if len(infos) > 0 {
		if u := jsonwalk.String(jsonwalk.Get(infos[0], "url")); u != "" {
			return u
		}
	}
	return jsonwalk.String(img["url"])
}

// millis normalizes second or millisecond timestamps to milliseconds.
func millis(v any) int64 {
	n, ok := jsonwalk.Int64(v)
	if !ok || n <= 0 {
		return 0
	}
	if n < 10_000_000_000 {
		return n * 1000
	}
	return n
}

// ParseNoteHTML extracts a note from a page. Without page state it falls
// back to readability for title and excerpt.
func ParseNoteHTML(html, pageURL, noteID string) (models.Note, error) {
	if state, err := InitialState(html); err == nil {
		if n, ok := ParseNoteState(state, noteID); ok {
			n.URL = pageURL
			return n, nil
		}
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return models.Note{}, errors.Wrap(err, "parse page url")
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return models.Note{}, errors.Wrap(err, "readability")
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		return models.Note{}, errors.New("note page has neither state nor title")
	}
	return models.Note{
		NoteID: noteID,
		Title:  title,
		Desc:   strings.TrimSpace(article.Excerpt),
		Type:   NoteTypeImage,
		URL:    pageURL,
	}, nil
}

// Note fetches and parses the note page for id.
func (c *Client) Note(ctx context.Context, id identifier.Identity) (models.Note, error) {
	const op = "parse_note"

	html, err := c.fetchHTML(ctx, op, c.pageURL(id.URL))
	if err != nil {
		return models.Note{}, err
	}
	n, err := ParseNoteHTML(html, id.URL, id.ID)
	if err != nil {
		return models.Note{}, failure.New(failure.Internal, op, err)
	}
	c.log.Info(ctx, "note parsed", "id", n.NoteID, "type", n.Type, "images", len(n.ImageURLs))
	return n, nil
}

func safeName(s string, max int) string {
	s = reUnsafeName.ReplaceAllString(s, "")
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}

// NoteDir is where a note's media is stored below base.
func NoteDir(base string, n models.Note) string {
	author := safeName(n.AuthorName, 20)
	if author == "" {
		author = "未知作者"
	}
	title := n.Title
	if title == "" {
		title = n.Desc
	}
	title = safeName(title, 40)
	if title == "" {
		title = "无标题"
	}
	return filepath.Join(base, "xhs", author, fmt.Sprintf("%s_%s", title, n.NoteID))
}

// DownloadNote stores the note's media and metadata and fills in the local
// paths. Image notes keep image_{i}.jpg; video notes keep cover.jpg and
// video.mp4. A failed image is skipped, a failed video fails the note.
func (c *Client) DownloadNote(ctx context.Context, n *models.Note) (string, error) {
	dir := NoteDir(c.downloadDir, *n)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failure.New(failure.DownloadFailed, "download_note", err)
	}
	if meta, err := json.MarshalIndent(n, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(dir, "info.json"), meta, 0o644); err != nil {
			c.log.Warn(ctx, "note metadata not saved", "dir", dir, "error", err)
		}
	}

	switch n.Type {
	case NoteTypeImage:
		n.ImagePaths = nil
		for i, u := range n.ImageURLs {
			path := filepath.Join(dir, fmt.Sprintf("image_%d.jpg", i))
			if _, err := c.downloader.Download(ctx, u, path); err != nil {
				c.log.Warn(ctx, "note image skipped", "id", n.NoteID, "index", i, "error", err)
				continue
			}
			n.ImagePaths = append(n.ImagePaths, path)
		}
		if len(n.ImagePaths) > 0 {
			n.CoverPath = n.ImagePaths[0]
		}
	default:
		if n.CoverURL != "" {
			path := filepath.Join(dir, "cover.jpg")
			if _, err := c.downloader.Download(ctx, n.CoverURL, path); err != nil {
				c.log.Warn(ctx, "note cover skipped", "id", n.NoteID, "error", err)
			} else {
				n.CoverPath = path
			}
		}
		if n.VideoURL != "" {
			path := filepath.Join(dir, "video.mp4")
			if _, err := c.downloader.Download(ctx, n.VideoURL, path); err != nil {
				return dir, err
			}
			n.VideoPath = path
		}
	}
	return dir, nil
}
