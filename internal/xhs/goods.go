package xhs

import (
	"context"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

var reSold = regexp.MustCompile(`已售(\d+)`)

// ParseGoodsDetail reads the mall detail API response.
func ParseGoodsDetail(v any) models.Goods {
	var g models.Goods
	tpl := jsonwalk.Object(firstElem(jsonwalk.Get(v, "data.template_data")))
	if tpl == nil {
		return g
	}

	g.Title = jsonwalk.String(jsonwalk.Get(tpl, "descriptionH5.name"))

	if price := jsonwalk.Object(tpl["priceH5"]); price != nil {
		if deal := jsonwalk.Object(price["dealPrice"]); len(deal) > 0 {
			g.Price = jsonwalk.String(deal["price"])
		} else {
			g.Price = jsonwalk.String(price["highlightPrice"])
		}
		g.SalesVolume = soldCount(price["itemAnalysisDataText"])
	}

	seller := jsonwalk.Object(tpl["sellerH5"])
	g.ShopName = jsonwalk.String(seller["name"])
	if g.SalesVolume == 0 {
		g.SalesVolume = soldCount(seller["salesVolume"])
	}

	if follow := jsonwalk.Object(jsonwalk.Get(tpl, "profitBarPopupH5.follow")); follow != nil {
		g.SellerUserID = jsonwalk.String(follow["sellerUserId"])
		if g.ShopName == "" {
			g.ShopName = jsonwalk.String(follow["name"])
		}
	}
	if g.SellerUserID == "" {
		g.SellerUserID = jsonwalk.String(seller["id"])
	}
	if g.SellerUserID == "" {
		g.SellerUserID = jsonwalk.String(jsonwalk.Get(tpl, "bottomBarMainH5.seller.sellerId"))
	}

	for _, it := range jsonwalk.Array(jsonwalk.Get(tpl, "headerBarMainPopup.list")) {
		if jsonwalk.String(jsonwalk.Get(it, "name")) != "分享" {
			continue
		}
		share := jsonwalk.Object(jsonwalk.Get(it, "data.shareData"))
		g.ImageURL = jsonwalk.FirstString(share, "imageurl", "image")
		break
	}
	return g
}

func firstElem(v any) any {
	if a := jsonwalk.Array(v); len(a) > 0 {
		return a[0]
	}
	return nil
}

func soldCount(v any) int64 {
	m := reSold.FindStringSubmatch(jsonwalk.String(v))
	if m == nil {
		return 0
	}
	n, _ := strconv.ParseInt(m[1], 10, 64)
	return n
}

// Goods fetches mall details for id and downloads the share image to
// {download dir}/goods/{goods_id}{ext}. A failed image download is logged
// and leaves ImagePath empty.
func (c *Client) Goods(ctx context.Context, id identifier.Identity) (models.Goods, error) {
	const op = "parse_goods"

	endpoint := c.mallBase + "/api/store/jpd/edith/detail/h5/toc?version=0.0.5&item_id=" + url.QueryEscape(id.ID)
	v, err := c.fetchJSON(ctx, op, endpoint)
	if err != nil {
		return models.Goods{}, err
	}

	g := ParseGoodsDetail(v)
	g.GoodsID = id.ID
	g.GoodsURL = identifier.CanonicalURL(identifier.Goods, id.ID, id.Token)
	if g.SellerUserID != "" {
		g.SellerProfileURL = identifier.CanonicalURL(identifier.Author, g.SellerUserID, "")
	}

	if g.ImageURL != "" {
		path := filepath.Join(c.downloadDir, "goods", id.ID+extFromURL(g.ImageURL, ".jpg"))
		if _, err := c.downloader.Download(ctx, g.ImageURL, path); err != nil {
			c.log.Warn(ctx, "goods image skipped", "id", id.ID, "error", err)
		} else {
			g.ImagePath = path
		}
	}
	c.log.Info(ctx, "goods parsed", "id", g.GoodsID, "title", g.Title)
	return g, nil
}
