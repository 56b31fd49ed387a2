package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fillFromJSONLD はページ内のJSON-LDブロックからschema.org Productを探し、
// productの未取得フィールドを補完する。
// 不正なJSONのブロックは個別にスキップし、他のブロックの抽出は継続する。
func fillFromJSONLD(doc *goquery.Document, product *Product) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data map[string]any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			// 不正なJSON-LDブロックはスキップ（抽出全体は中断しない）
			return
		}

		// @graphでラップされた形式にも対応する
		items := []any{any(data)}
		if graph, ok := data["@graph"].([]any); ok {
			items = graph
		}

		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if !isProductType(item["@type"]) {
				continue
			}

			if product.Title == "" {
				product.Title = strings.TrimSpace(stringValue(item["name"]))
			}
			if product.Description == "" {
				product.Description = strings.TrimSpace(stringValue(item["description"]))
			}
			if product.Image == "" {
				product.Image = firstString(item["image"])
			}
			if product.Price == "" {
				product.Price = priceFromOffers(item["offers"])
			}
		}
	})
}

// isProductType は@typeがProduct（または"Product"を含む配列）かを判定する。
func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Product"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

// priceFromOffers はoffers（オブジェクトまたは配列）から価格文字列を組み立てる。
// 通貨コードがある場合は "<CURRENCY> <amount>"、ない場合は "$<amount>" を返す。
func priceFromOffers(v any) string {
	offer, ok := v.(map[string]any)
	if !ok {
		// 配列の場合は先頭のオファーを使用する
		offers, isSlice := v.([]any)
		if !isSlice || len(offers) == 0 {
			return ""
		}
		offer, ok = offers[0].(map[string]any)
		if !ok {
			return ""
		}
	}

	price := stringValue(offer["price"])
	if price == "" {
		return ""
	}

	currency := stringValue(offer["priceCurrency"])
	if currency != "" {
		return currency + " " + price
	}
	return "$" + price
}

// stringValue は文字列または数値をそのままの表記の文字列として返す。
// JSON-LDのpriceは文字列と数値の両方の形式で出現する。
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// 整数値は小数点なしで表記する（1500.0 -> "1500"）
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	}
	return ""
}

// firstString は文字列または文字列配列の先頭要素を返す。
// JSON-LDのimageは両方の形式で出現する。
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
