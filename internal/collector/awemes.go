package collector

import (
	"sort"

	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

var awemeKeys = jsonwalk.NewWalker("aweme_info", "aweme_list")

// ExtractAwemes finds video items anywhere in a search response. Items with
// a create time before cutoff are dropped; a URL seen twice keeps its newest
// create time. The result is sorted newest first.
func ExtractAwemes(v any, cutoff int64) []models.Candidate {
	var items []map[string]any
	awemeKeys.Walk(v, func(m jsonwalk.Match) bool {
		switch m.Key {
		case "aweme_info":
			if obj := jsonwalk.Object(m.Value); obj != nil {
				items = append(items, obj)
			}
		case "aweme_list":
			for _, el := range jsonwalk.Array(m.Value) {
				obj := jsonwalk.Object(el)
				if obj == nil {
					continue
				}
				if inner := jsonwalk.Object(obj["aweme_info"]); inner != nil {
					items = append(items, inner)
				} else {
					items = append(items, obj)
				}
			}
		}
		return false
	})

	best := make(map[string]models.Candidate)
	for _, it := range items {
		id := jsonwalk.FirstString(it, "aweme_id", "group_id")
		if id == "" {
			continue
		}
		ct, _ := jsonwalk.Int64(it["create_time"])
		if ct < cutoff {
			continue
		}
		u := identifier.VideoURL(id)
		if prev, ok := best[u]; ok && prev.CreateTime >= ct {
			continue
		}
		best[u] = models.Candidate{URL: u, ExternalID: id, CreateTime: ct}
	}

	out := make([]models.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateTime != out[j].CreateTime {
			return out[i].CreateTime > out[j].CreateTime
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}
