package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// siteOverride は特定サイト向けのDOMセレクタ上書きを表す。
// ホスト名の部分一致で適用され、取得できた値のみを上書きする。
type siteOverride struct {
	hostFragment string
	apply        func(doc *goquery.Document, product *Product)
}

// siteOverrides はサイト別上書きのレジストリ。
// 新しいサイトへの対応はこのテーブルへの追加のみで完結し、
// 汎用抽出ロジックには手を入れない。
var siteOverrides = []siteOverride{
	{hostFragment: "facebook.com", apply: applyFacebookOverride},
	{hostFragment: "amazon.", apply: applyAmazonOverride},
	{hostFragment: "ebay.", apply: applyEbayOverride},
}

// applySiteOverrides はproduct.Sourceに一致するサイト別上書きをすべて適用する。
func applySiteOverrides(doc *goquery.Document, product *Product) {
	for _, override := range siteOverrides {
		if strings.Contains(product.Source, override.hostFragment) {
			override.apply(doc, product)
		}
	}
}

// fbPriceRe はFacebook Marketplaceの本文から価格を検出するパターン。
// 小数部を持たない表記が一般的なため、汎用パターンより狭い。
var fbPriceRe = regexp.MustCompile(`(NZ|AU|US)?\$[\d,]+`)

// applyFacebookOverride はFacebook Marketplaceのセレクタで上書きする。
func applyFacebookOverride(doc *goquery.Document, product *Product) {
	if title := strings.TrimSpace(doc.Find(`[role="main"] h1`).First().Text()); title != "" {
		product.Title = title
	}

	if price := fbPriceRe.FindString(doc.Find(`[role="main"]`).Text()); price != "" {
		product.Price = price
	}

	if image, ok := doc.Find(`img[src*="scontent"]`).First().Attr("src"); ok && image != "" {
		product.Image = image
	}
}

// applyAmazonOverride はAmazonの商品ページのセレクタで上書きする。
func applyAmazonOverride(doc *goquery.Document, product *Product) {
	if title := strings.TrimSpace(doc.Find("#productTitle").Text()); title != "" {
		product.Title = title
	}

	if price := strings.TrimSpace(doc.Find(".a-price .a-offscreen").First().Text()); price != "" {
		product.Price = price
	}

	if image, ok := doc.Find("#landingImage").Attr("src"); ok && image != "" {
		product.Image = image
	}
}

// applyEbayOverride はeBayの商品ページのセレクタで上書きする。
func applyEbayOverride(doc *goquery.Document, product *Product) {
	if title := strings.TrimSpace(doc.Find("h1.x-item-title__mainTitle").Text()); title != "" {
		product.Title = title
	}

	if price := strings.TrimSpace(doc.Find(".x-price-primary span").First().Text()); price != "" {
		product.Price = price
	}

	if image, ok := doc.Find(".ux-image-carousel-item img").First().Attr("src"); ok && image != "" {
		product.Image = image
	}
}
