package identifier

import (
	"net/url"
	"regexp"
	"strings"
)

const DouyinBase = "https://www.douyin.com"

var videoPath = regexp.MustCompile(`/video/(\d+)`)

// VideoID finds the numeric video id in a douyin page URL: the /video/{id}
// path segment first, then the modal_id query parameter.
func VideoID(pageURL string) (string, bool) {
	if m := videoPath.FindStringSubmatch(pageURL); m != nil {
		return m[1], true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	modal := u.Query().Get("modal_id")
	if modal != "" && isDigits(modal) {
		return modal, true
	}
	return "", false
}

func VideoURL(id string) string {
	return DouyinBase + "/video/" + id
}

// IsDouyinPage accepts only http(s) links on the douyin web host.
func IsDouyinPage(pageURL string) bool {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host == "www.douyin.com" || u.Host == "douyin.com"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
