// Package extractor は商品ページのHTMLから構造化された商品情報を抽出する。
// ヒューリスティクス（Open Graph → JSON-LD → h1 → 価格パターン → サイト別上書き）を
// 優先し、タイトルが取れない場合のみLLMフォールバックを使用する。
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoProductData はヒューリスティクスとLLMフォールバックの両方が
// 商品情報を抽出できなかったことを表す。
var ErrNoProductData = errors.New("no product data found")

// Method は抽出に使用された手法を表す。
type Method string

const (
	// MethodHeuristics はルールベースの抽出。
	MethodHeuristics Method = "heuristics"
	// MethodLLM は生成テキストサービスによるフォールバック抽出。
	MethodLLM Method = "llm"
)

// Product は抽出された商品情報を表す。
// Priceは通貨記号を含む自由テキスト（例: "NZD 1500", "$49.99"）。
type Product struct {
	Title       string `json:"title"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Method      Method `json:"method"`
}

// LLMFallback はヒューリスティクス失敗時のフォールバック抽出インターフェース。
// llm.Clientを抽象化してテスタビリティを向上させる。
type LLMFallback interface {
	// ExtractProduct はHTMLをLLMに渡して商品情報を抽出する。
	// タイトルが取得できない場合はnilを返す（エラーにはしない）。
	ExtractProduct(ctx context.Context, html, rawURL string) (*Product, error)
}

// Extractor は商品情報抽出サービス。
type Extractor struct {
	llm    LLMFallback // nilの場合はヒューリスティクスのみ
	logger *slog.Logger
}

// New はExtractorの新しいインスタンスを生成する。
// llmにnilを渡すとフォールバックなしで動作する（ワーカーの自動再チェック用）。
func New(llm LLMFallback, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		llm:    llm,
		logger: logger,
	}
}

// priceRe は本文テキストから通貨付き価格を検出するパターン。
// NZD/AUD/USDプレフィックス付きドル、ユーロ、ポンドに対応する。
var priceRe = regexp.MustCompile(`(NZ|AU|US)?\$[\d,]+(\.\d{2})?|€[\d,]+(\.\d{2})?|£[\d,]+(\.\d{2})?`)

// Extract はHTMLと取得元URLから商品情報を抽出する。
// ヒューリスティクスで非空のタイトルが得られればその結果を返す。
// 得られなければLLMフォールバックを試行し、両方失敗した場合はErrNoProductDataを返す。
// 部分的なヒューリスティクス結果（タイトルなし）は返さない。
func (e *Extractor) Extract(ctx context.Context, html, rawURL string) (*Product, error) {
	if product := e.ExtractHeuristics(html, rawURL); product != nil {
		return product, nil
	}

	if e.llm == nil {
		return nil, ErrNoProductData
	}

	product, err := e.llm.ExtractProduct(ctx, html, rawURL)
	if err != nil {
		// LLM側の失敗（ネットワーク、非2xx）はフォールバック失敗として扱い、
		// ハードエラーにはしない
		e.logger.Warn("LLMフォールバックに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, ErrNoProductData
	}
	if product == nil {
		return nil, ErrNoProductData
	}

	return product, nil
}

// ExtractHeuristics はルールベースの抽出のみを実行する。
// 各フィールドは独立に、先に見つかった値が採用される（サイト別上書きを除く）。
// タイトルが取得できなかった場合はnilを返す。
func (e *Extractor) ExtractHeuristics(html, rawURL string) *Product {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("HTMLのパースに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	product := &Product{
		Source: SourceFromURL(rawURL),
		Method: MethodHeuristics,
	}

	// 1. Open Graphメタタグ（整形されたサイトの大半をカバーする）
	product.Title = metaContent(doc, "og:title")
	product.Image = metaContent(doc, "og:image")
	product.Description = metaContent(doc, "og:description")

	// 2. JSON-LD（schema.org Product）で未取得フィールドを補完
	fillFromJSONLD(doc, product)

	// 3. タイトルが未取得ならページ先頭のh1を使用
	if product.Title == "" {
		product.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	// 4. 価格が未取得なら本文テキストから通貨付きパターンを検索
	if product.Price == "" {
		product.Price = priceRe.FindString(doc.Find("body").Text())
	}

	// 5. サイト別上書き：汎用ヒューリスティクスよりサイト固有セレクタの方が
	// 信頼できるため、見つかった値で上書きする
	applySiteOverrides(doc, product)

	// 成功条件は非空のタイトル。部分的な結果は返さない
	if product.Title == "" {
		return nil
	}

	return product
}

// metaContent は指定したog:プロパティのcontent属性を返す。
func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// SourceFromURL はURLからwww.を除いたホスト名を返す。
// パースできないURLには空文字列を返す。
func SourceFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
