// Package media fetches video details and downloads media files.
package media

import (
	"encoding/json"
	"strings"

	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

const shoppingTag = "购物"

// ParseAweme maps a video detail object onto models.Aweme.
func ParseAweme(obj map[string]any) models.Aweme {
	ct, _ := jsonwalk.Int64(obj["create_time"])
	a := models.Aweme{
		ID:         jsonwalk.FirstString(obj, "aweme_id", "group_id"),
		Desc:       jsonwalk.String(obj["desc"]),
		CreateTime: ct,
		Nickname:   jsonwalk.String(jsonwalk.Get(obj, "author.nickname")),
		SecUID:     jsonwalk.String(jsonwalk.Get(obj, "author.sec_uid")),
		Product:    ProductTitle(obj),
		Raw:        obj,
	}
	if urls := jsonwalk.Array(jsonwalk.Get(obj, "video.play_addr.url_list")); len(urls) > 0 {
		a.PlayURL = jsonwalk.String(urls[0])
	}
	return a
}

// ProductTitle returns the first product title attached to a shopping
// video, or "" when the video carries no product anchor.
func ProductTitle(obj map[string]any) string {
	anchor := jsonwalk.Object(obj["anchor_info"])
	if anchor == nil {
		return ""
	}
	typ, _ := jsonwalk.Int64(anchor["type"])
	if typ != 3 && jsonwalk.String(anchor["title_tag"]) != shoppingTag {
		return ""
	}

	extra := anchor["extra"]
	if s, ok := extra.(string); ok {
		if strings.TrimSpace(s) == "" {
			return ""
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return ""
		}
		extra = parsed
	}

	switch t := extra.(type) {
	case []any:
		for _, el := range t {
			if title := productEntryTitle(el); title != "" {
				return title
			}
		}
	case map[string]any:
		return productEntryTitle(t)
	}
	return ""
}

func productEntryTitle(v any) string {
	obj := jsonwalk.Object(v)
	if obj == nil {
		return ""
	}
	s, _ := obj["title"].(string)
	return strings.TrimSpace(s)
}
