package xhs

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

var (
	reTitleNickname = regexp.MustCompile(`^(.+?)(?:的个人主页|个人主页)`)
	reJSONNickname  = regexp.MustCompile(`"nickname"\s*:\s*"([^"]+)"`)
	reRedID         = regexp.MustCompile(`小红书号[：:]\s*(\d+)`)
	reIPLocation    = regexp.MustCompile(`IP属地[：:]\s*([^<\s]+)`)
	reFansTagged    = regexp.MustCompile(`<span class="count"[^>]*>(\d+)</span>\s*<span class="shows"[^>]*>粉丝</span>`)
	reFansColon     = regexp.MustCompile(`粉丝[：:]\s*(\d+)`)
	reFansSuffix    = regexp.MustCompile(`(\d+)\s*粉丝`)
)

// ParseAuthorState reads profile fields from a decoded page state.
func ParseAuthorState(state any) (models.Author, bool) {
	user := jsonwalk.Object(jsonwalk.Get(state, "user.userPageData"))
	if user == nil {
		user = jsonwalk.Object(jsonwalk.Get(state, "user"))
	}
	if user == nil {
		return models.Author{}, false
	}
	basic := jsonwalk.Object(user["basicInfo"])
	if basic == nil {
		basic = map[string]any{}
	}

	a := models.Author{
		Nickname:   firstOf(jsonwalk.String(basic["nickname"]), jsonwalk.String(user["nickname"])),
		RedID:      firstOf(jsonwalk.FirstString(basic, "redId", "red_id"), jsonwalk.String(user["red_id"])),
		IPLocation: firstOf(jsonwalk.FirstString(basic, "ipLocation", "ip_location"), jsonwalk.String(user["ipLocation"])),
		FansCount:  -1,
	}
	for _, it := range jsonwalk.Array(user["interactions"]) {
		obj := jsonwalk.Object(it)
		if jsonwalk.String(obj["type"]) == "fans" || jsonwalk.String(obj["name"]) == "粉丝" {
			if v := obj["count"]; jsonwalk.String(v) != "" {
				a.FansCount = count(v)
			}
			break
		}
	}
	if a.FansCount < 0 {
		for _, v := range []any{user["fansCount"], basic["fansCount"], jsonwalk.Get(user, "interactionInfo.fansCount")} {
			if v != nil {
				a.FansCount = count(v)
				break
			}
		}
	}
	if a.Nickname == "" && a.RedID == "" {
		return models.Author{}, false
	}
	return a, true
}

// ParseAuthorHTML extracts profile fields from a profile page, reading the
// page state first and scraping the markup for anything still missing.
func ParseAuthorHTML(html string) models.Author {
	a := models.Author{FansCount: -1}
	if state, err := InitialState(html); err == nil {
		if parsed, ok := ParseAuthorState(state); ok {
			a = parsed
		}
	}

	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	if a.Nickname == "" && doc != nil {
		a.Nickname = strings.TrimSpace(doc.Find(".user-name").First().Text())
		if a.Nickname == "" {
			if m := reTitleNickname.FindStringSubmatch(strings.TrimSpace(doc.Find("title").First().Text())); m != nil {
				a.Nickname = strings.TrimSpace(m[1])
			}
		}
	}
	if a.Nickname == "" {
		if m := reJSONNickname.FindStringSubmatch(html); m != nil {
			a.Nickname = m[1]
		}
	}
	if a.RedID == "" {
		if m := reRedID.FindStringSubmatch(html); m != nil {
			a.RedID = m[1]
		}
	}
	if a.IPLocation == "" {
		if m := reIPLocation.FindStringSubmatch(html); m != nil {
			a.IPLocation = m[1]
		}
	}
	if a.FansCount < 0 {
		for _, re := range []*regexp.Regexp{reFansTagged, reFansColon, reFansSuffix} {
			if m := re.FindStringSubmatch(html); m != nil {
				a.FansCount, _ = strconv.ParseInt(m[1], 10, 64)
				break
			}
		}
	}
	if a.FansCount < 0 {
		a.FansCount = 0
	}
	return a
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Author fetches the profile page for id. The profile URL keeps the share
// token when one is known.
func (c *Client) Author(ctx context.Context, id identifier.Identity) (models.Author, error) {
	const op = "parse_author"

	html, err := c.fetchHTML(ctx, op, c.pageURL(id.URL))
	if err != nil {
		return models.Author{}, err
	}
	a := ParseAuthorHTML(html)
	a.UserID = id.ID
	a.URL = identifier.CanonicalURL(identifier.Author, id.ID, "")
	a.ProfileURL = identifier.CanonicalURL(identifier.Author, id.ID, id.Token)
	a.XsecToken = id.Token
	c.log.Info(ctx, "author parsed", "id", a.UserID, "red_id", a.RedID)
	return a, nil
}
