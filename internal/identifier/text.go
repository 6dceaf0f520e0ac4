// Package identifier turns share text and the many link shapes of the two
// content platforms into stable ids and canonical URLs.
package identifier

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	xhsURLInText = regexp.MustCompile(`https?://(?:www\.)?xiaohongshu\.com/[^\s\x{4e00}-\x{9fff}]*`)
	anyURLInText = regexp.MustCompile(`https?://[^\s\x{4e00}-\x{9fff}]+`)
)

const trailingPunct = ".,;!?。，；！？"

// ExtractURL pulls the first link out of free text such as a share message.
// xiaohongshu.com links win over other links. The text is percent-decoded
// only when it holds no link as written, so query values inside a found
// link keep their escaping. Text without any link is returned trimmed, on
// the assumption it is already a URL.
func ExtractURL(text string) string {
	if m := findURL(text); m != "" {
		return m
	}
	if decoded, err := url.PathUnescape(text); err == nil && decoded != text {
		if m := findURL(decoded); m != "" {
			return m
		}
	}
	return strings.TrimSpace(text)
}

func findURL(text string) string {
	if m := xhsURLInText.FindString(text); m != "" {
		return strings.TrimRight(m, trailingPunct)
	}
	if m := anyURLInText.FindString(text); m != "" {
		return strings.TrimRight(m, trailingPunct)
	}
	return ""
}
