package identifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

const noteID = "691640ea0000000007022395"

func TestVideoID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"video path", "https://www.douyin.com/video/7123456789", "7123456789", true},
		{"modal id", "https://www.douyin.com/user/x?modal_id=7123456789", "7123456789", true},
		{"path wins", "https://www.douyin.com/video/111?modal_id=222", "111", true},
		{"non digit modal", "https://www.douyin.com/user/x?modal_id=abc", "", false},
		{"nothing", "https://www.douyin.com/discover", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := VideoID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDouyinPage(t *testing.T) {
	assert.True(t, IsDouyinPage("https://www.douyin.com/video/1"))
	assert.True(t, IsDouyinPage("http://douyin.com/video/1"))
	assert.False(t, IsDouyinPage("https://v.douyin.com/abc"))
	assert.False(t, IsDouyinPage("ftp://www.douyin.com/video/1"))
	assert.False(t, IsDouyinPage("https://evil.com/www.douyin.com"))
}

func TestExtractURL(t *testing.T) {
	assert.Equal(t, "http://xhslink.com/o/9GubyGk1LPj",
		ExtractURL("对方保险公司要我们赔5w 对方车损一个灯罩，掉漆，还... http://xhslink.com/o/9GubyGk1LPj 复制后打开【小红书】查看笔记！"))
	assert.Equal(t, "https://www.xiaohongshu.com/discovery/item/"+noteID+"?xsec_token=T",
		ExtractURL("63%20【标题】 😆 https://www.xiaohongshu.com/discovery/item/"+noteID+"?xsec_token=T。"))
	assert.Equal(t, "https://www.xiaohongshu.com/explore/"+noteID,
		ExtractURL("http://xhslink.com/a https://www.xiaohongshu.com/explore/"+noteID))
	assert.Equal(t, "plain", ExtractURL("  plain "))
}

func TestExtractID(t *testing.T) {
	assert.Equal(t, noteID, NoteID("https://www.xiaohongshu.com/explore/"+noteID+"?a=b"))
	assert.Equal(t, noteID, NoteID("https://www.xiaohongshu.com/discovery/item/"+noteID))
	assert.Equal(t, "", NoteID("https://www.xiaohongshu.com/explore/XYZ"))
	assert.Equal(t, "68c3c849000000001901b11e", UserID("https://www.xiaohongshu.com/user/profile/68c3c849000000001901b11e?xsec_token=x"))
	assert.Equal(t, "68bf7e9b6a569a0015b68337", GoodsID("https://www.xiaohongshu.com/goods-detail/68bf7e9b6a569a0015b68337"))
	assert.Equal(t, "", GoodsID("https://www.xiaohongshu.com/explore/"+noteID))
}

func TestToken(t *testing.T) {
	assert.Equal(t, "CBr0pTTp8vm5CarMUCnZfuPTHwVMNXGXjnvPvI9NvsgqQ=",
		Token("https://www.xiaohongshu.com/explore/"+noteID+"?xsec_source=pc&xsec_token=CBr0pTTp8vm5CarMUCnZfuPTHwVMNXGXjnvPvI9NvsgqQ="))
	assert.Equal(t, "a/b", Token("https://www.xiaohongshu.com/explore/x?xsec_token=a%2Fb"))
	assert.Equal(t, "", Token("https://www.xiaohongshu.com/explore/x"))
}

func TestResolveLoginRedirect_Encoded(t *testing.T) {
	in := "https://www.xiaohongshu.com/login?redirectPath=" +
		url.QueryEscape("https://www.xiaohongshu.com/discovery/item/"+noteID+"?xsec_token=TOK&xsec_source=app_share")

	got, ok := ResolveLoginRedirect(in)
	require.True(t, ok)
	assert.Equal(t, "https://www.xiaohongshu.com/discovery/item/"+noteID+"?xsec_token=TOK&xsec_source=app_share", got)
}

func TestResolveLoginRedirect_SplitParamsReassembledByName(t *testing.T) {
	in := "https://www.xiaohongshu.com/login?redirectPath=https://www.xiaohongshu.com/discovery/item/" + noteID +
		"?app_platform=ios&unrelated=1&xsec_token=TOK&xsec_source=app_share"

	got, ok := ResolveLoginRedirect(in)
	require.True(t, ok)
	assert.Equal(t, "https://www.xiaohongshu.com/discovery/item/"+noteID+"?app_platform=ios&xsec_source=app_share&xsec_token=TOK", got)
	assert.Equal(t, "TOK", Token(got))
}

func TestReassembleSplitParams(t *testing.T) {
	base := "https://www.xiaohongshu.com/discovery/item/" + noteID + "?source=webshare"
	params := url.Values{
		"url":         {base},
		"xsec_token":  {"TOK="},
		"xhsshare":    {"pc_web"},
		"xsec_source": {"pc_share"},
		"source":      {"ignored"},
	}

	got := ReassembleSplitParams(base, params)
	assert.Equal(t, base+"&xsec_token=TOK=&xsec_source=pc_share&xhsshare=pc_web", got)

	assert.Equal(t, "https://example.com/?a=1", ReassembleSplitParams("https://example.com/?a=1", params))
}

type stubResolver struct {
	target string
	err    error
	calls  int
}

func (s *stubResolver) ResolveShortLink(context.Context, string) (string, error) {
	s.calls++
	return s.target, s.err
}

func TestNormalize_SameIdentityForDifferentShapes(t *testing.T) {
	stub := &stubResolver{target: "https://www.xiaohongshu.com/login?redirectPath=" +
		url.QueryEscape("https://www.xiaohongshu.com/discovery/item/"+noteID+"?xsec_token=TOK")}
	n := NewNormalizer(stub)
	ctx := context.Background()

	inputs := []string{
		"https://www.xiaohongshu.com/explore/" + noteID + "?xsec_token=TOK",
		"https://www.xiaohongshu.com/discovery/item/" + noteID + "?source=webshare&xhsshare=pc_web&xsec_token=TOK&xsec_source=pc_share",
		"看看这个 http://xhslink.com/o/abc 复制后打开",
	}

	want := Identity{
		Target: Note,
		ID:     noteID,
		Token:  "TOK",
		URL:    "https://www.xiaohongshu.com/explore/" + noteID + "?xsec_token=TOK",
	}
	for _, in := range inputs {
		got, err := n.Normalize(ctx, Note, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	assert.Equal(t, 1, stub.calls)
}

func TestNormalize_IdempotentWithBase64Token(t *testing.T) {
	n := NewNormalizer(nil)
	ctx := context.Background()

	first, err := n.Normalize(ctx, Note,
		"https://www.xiaohongshu.com/explore/691640ea0000000007022395?xsec_token=AB%2BCD%2Fef%3D&xsec_source=pc")
	require.NoError(t, err)
	assert.Equal(t, "AB+CD/ef=", first.Token)
	assert.Equal(t, "https://www.xiaohongshu.com/explore/691640ea0000000007022395?xsec_token=AB%2BCD%2Fef%3D", first.URL)
	_, err = url.Parse(first.URL)
	require.NoError(t, err)

	second, err := n.Normalize(ctx, Note, first.URL)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// share text around the link does not change the result
	third, err := n.Normalize(ctx, Note, "快来看 "+first.URL+" 复制后打开")
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestExtractURL_EncodedLink(t *testing.T) {
	raw := "https://www.xiaohongshu.com/explore/" + noteID + "?xsec_token=TOK"
	assert.Equal(t, raw, ExtractURL(url.PathEscape(raw)))
	assert.Equal(t, raw+"%2B", ExtractURL(raw+"%2B"))
}

func TestNormalize_ExploreScenario(t *testing.T) {
	got, err := NewNormalizer(nil).Normalize(context.Background(), Note,
		"https://www.xiaohongshu.com/explore/aaaaaaaaaaaaaaaaaaaaaaaa?xsec_token=TOK")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", got.ID)
	assert.Equal(t, "TOK", got.Token)
	assert.Equal(t, "https://www.xiaohongshu.com/explore/aaaaaaaaaaaaaaaaaaaaaaaa?xsec_token=TOK", got.URL)
}

func TestNormalize_AllOrNothing(t *testing.T) {
	n := NewNormalizer(&stubResolver{err: failure.Errorf(failure.ShortLinkResolutionFailed, "resolve", "timeout")})
	ctx := context.Background()

	got, err := n.Normalize(ctx, Note, "https://www.xiaohongshu.com/explore/"+noteID)
	assert.Equal(t, Identity{}, got)
	assert.Equal(t, failure.NoIdentifierFound, failure.KindOf(err))

	got, err = n.Normalize(ctx, Note, "https://www.xiaohongshu.com/explore/short?xsec_token=T")
	assert.Equal(t, Identity{}, got)
	assert.Equal(t, failure.NoIdentifierFound, failure.KindOf(err))

	got, err = n.Normalize(ctx, Note, "http://xhslink.com/o/zzz")
	assert.Equal(t, Identity{}, got)
	assert.Equal(t, failure.ShortLinkResolutionFailed, failure.KindOf(err))

	_, err = NewNormalizer(nil).Normalize(ctx, Goods, "http://xhslink.com/m/zzz")
	assert.True(t, errors.Is(err, &failure.Error{Kind: failure.ShortLinkResolutionFailed}))
}

func TestNormalize_AuthorAndGoodsTokenOptional(t *testing.T) {
	n := NewNormalizer(nil)
	ctx := context.Background()

	a, err := n.Normalize(ctx, Author, "@someone 查看Ta的主页>> https://www.xiaohongshu.com/user/profile/68c3c849000000001901b11e")
	require.NoError(t, err)
	assert.Equal(t, "https://www.xiaohongshu.com/user/profile/68c3c849000000001901b11e", a.URL)

	g, err := n.Normalize(ctx, Goods, "https://www.xiaohongshu.com/goods-detail/68bf7e9b6a569a0015b68337?xsec_token=G")
	require.NoError(t, err)
	assert.Equal(t, "https://www.xiaohongshu.com/goods-detail/68bf7e9b6a569a0015b68337?xsec_token=G", g.URL)
}

func TestResolver_FollowsRedirect(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/o/abc" {
			assert.Equal(t, "c=1", r.Header.Get("Cookie"))
			http.Redirect(w, r, srv.URL+"/explore/"+noteID+"?xsec_token=TOK", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	got, err := NewResolver("c=1", 0).ResolveShortLink(context.Background(), srv.URL+"/o/abc")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/explore/"+noteID+"?xsec_token=TOK", got)
}

func TestResolver_BodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><script>location.href="https://www.xiaohongshu.com/explore/` + noteID + `?xsec_token=TOK"</script></body></html>`))
	}))
	defer srv.Close()

	got, err := NewResolver("", 0).ResolveShortLink(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://www.xiaohongshu.com/explore/"+noteID+"?xsec_token=TOK", got)
}

func TestResolver_CanonicalLinkPreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="canonical" href="https://www.xiaohongshu.com/goods-detail/68bf7e9b6a569a0015b68337"></head>
<body>https://www.xiaohongshu.com/other</body></html>`))
	}))
	defer srv.Close()

	got, err := NewResolver("", 0).ResolveShortLink(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://www.xiaohongshu.com/goods-detail/68bf7e9b6a569a0015b68337", got)
}

func TestResolver_NoMatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>nothing</html>`))
	}))
	defer srv.Close()

	_, err := NewResolver("", 0).ResolveShortLink(context.Background(), srv.URL)
	assert.Equal(t, failure.ShortLinkResolutionFailed, failure.KindOf(err))
}
