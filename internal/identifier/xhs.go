package identifier

import (
	"net/url"
	"regexp"
	"strings"
)

const XHSBase = "https://www.xiaohongshu.com"

// Target selects which kind of xiaohongshu page an id belongs to.
type Target int

const (
	Note Target = iota
	Author
	Goods
)

func (t Target) String() string {
	switch t {
	case Author:
		return "author"
	case Goods:
		return "goods"
	}
	return "note"
}

var (
	explorePath   = regexp.MustCompile(`/explore/([a-f0-9]{24})`)
	discoveryPath = regexp.MustCompile(`/discovery/item/([a-f0-9]{24})`)
	profilePath   = regexp.MustCompile(`/user/profile/([a-f0-9]{24})`)
	goodsPath     = regexp.MustCompile(`/goods-detail/([a-f0-9]{24})`)
	tokenParam    = regexp.MustCompile(`xsec_token=([^&\s#]+)`)
)

// ExtractID returns the 24-hex id for the target, or "" when the URL has none.
func ExtractID(target Target, rawURL string) string {
	var patterns []*regexp.Regexp
	switch target {
	case Note:
		patterns = []*regexp.Regexp{explorePath, discoveryPath}
	case Author:
		patterns = []*regexp.Regexp{profilePath}
	case Goods:
		patterns = []*regexp.Regexp{goodsPath}
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}
	return ""
}

func NoteID(rawURL string) string  { return ExtractID(Note, rawURL) }
func UserID(rawURL string) string  { return ExtractID(Author, rawURL) }
func GoodsID(rawURL string) string { return ExtractID(Goods, rawURL) }

// Token reads the xsec_token query parameter with normal query unescaping.
func Token(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if v := u.Query().Get("xsec_token"); v != "" {
			return v
		}
	}
	// unparseable URLs still carry the token verbatim
	if m := tokenParam.FindStringSubmatch(rawURL); m != nil {
		if v, err := url.QueryUnescape(m[1]); err == nil {
			return v
		}
		return m[1]
	}
	return ""
}

// CanonicalURL builds the stable link for an id. The token is query-escaped,
// so Token(CanonicalURL(t, id, tok)) == tok for any token.
func CanonicalURL(target Target, id, token string) string {
	var path string
	switch target {
	case Author:
		path = "/user/profile/"
	case Goods:
		path = "/goods-detail/"
	default:
		path = "/explore/"
	}
	out := XHSBase + path + id
	if token != "" {
		out += "?xsec_token=" + url.QueryEscape(token)
	}
	return out
}

func IsShortLink(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "xhslink.com")
}

// IsLoginRedirect reports a login wall that carries the real target in
// redirectPath.
func IsLoginRedirect(rawURL string) bool {
	return strings.Contains(rawURL, "/login") && strings.Contains(rawURL, "redirectPath=")
}

// redirectParams are the inner query keys that a naive parser splits off
// redirectPath into top-level parameters.
var redirectParams = []string{
	"app_platform", "app_version", "share_from_user_hidden", "xsec_source",
	"type", "xsec_token", "author_share", "xhsshare", "shareRedId",
	"apptime", "share_id", "exSource",
}

// ResolveLoginRedirect returns the decoded redirectPath target. Inner
// parameters that ended up as siblings of redirectPath are put back by name.
func ResolveLoginRedirect(rawURL string) (string, bool) {
	if !strings.Contains(rawURL, "redirectPath=") {
		return "", false
	}

	query := rawURL
	if i := strings.IndexByte(query, '?'); i >= 0 {
		query = query[i+1:]
	}
	if fields := strings.Fields(query); len(fields) > 0 {
		query = fields[0]
	}

	values, err := url.ParseQuery(query)
	if err == nil {
		if base := values.Get("redirectPath"); base != "" {
			return appendMissing(base, values, redirectParams), true
		}
	}

	// fall back to taking everything after redirectPath=
	i := strings.Index(rawURL, "redirectPath=")
	rest := rawURL[i+len("redirectPath="):]
	if fields := strings.Fields(rest); len(fields) > 0 {
		rest = strings.TrimRight(fields[0], `",;`)
	}
	if rest == "" {
		return "", false
	}
	if decoded, err := url.PathUnescape(rest); err == nil {
		return decoded, true
	}
	return rest, true
}

// splitParams are the note link parameters a GET handler may receive as
// separate query values when the caller did not escape the url argument.
var splitParams = []string{"xsec_token", "xsec_source", "xhsshare", "source"}

// ReassembleSplitParams re-appends those parameters to base when base is a
// xiaohongshu link with a query that lacks them.
func ReassembleSplitParams(base string, params url.Values) string {
	if !strings.Contains(base, "xiaohongshu.com") || !strings.Contains(base, "?") {
		return base
	}
	return appendMissing(base, params, splitParams)
}

// appendMissing adds key=value for each key found in params but absent from
// base, in the order of keys. Values are not re-escaped.
func appendMissing(base string, params url.Values, keys []string) string {
	var extra []string
	for _, k := range keys {
		v, ok := params[k]
		if !ok || len(v) == 0 || hasParam(base, k) {
			continue
		}
		extra = append(extra, k+"="+v[0])
	}
	if len(extra) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(extra, "&")
}

func hasParam(rawURL, key string) bool {
	i := strings.IndexByte(rawURL, '?')
	if i < 0 {
		return false
	}
	for _, pair := range strings.Split(rawURL[i+1:], "&") {
		if name, _, _ := strings.Cut(pair, "="); name == key {
			return true
		}
	}
	return false
}
