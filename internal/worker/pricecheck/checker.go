// Package pricecheck はProユーザーのリスティング価格を定期的に再チェックする
// バックグラウンド処理を提供する。スケジューラとチェッカーを含む。
package pricecheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grabbit/grabbit/internal/extractor"
	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/repository"
	"github.com/grabbit/grabbit/internal/security"
)

// HeuristicExtractor はページHTMLからのルールベース抽出インターフェース。
// 自動再チェックではLLMフォールバックを使用しない（コストと頻度の問題）。
type HeuristicExtractor interface {
	ExtractHeuristics(html, rawURL string) *extractor.Product
}

// CheckMetricsRecorder は価格再チェック結果のメトリクス記録インターフェース。
type CheckMetricsRecorder interface {
	RecordPriceCheckSuccess()
	RecordPriceCheckFailure()
	RecordPriceDrop()
}

// Checker はリスティング1件の価格再チェックを実行する。
type Checker struct {
	listingRepo repository.ListingRepository
	historyRepo repository.PriceHistoryRepository
	extractor   HeuristicExtractor
	guard       security.SSRFGuardService
	httpClient  *http.Client
	maxBodySize int64
	metrics     CheckMetricsRecorder // nilの場合は記録しない
	logger      *slog.Logger
}

// NewChecker はCheckerの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すこと。
func NewChecker(
	listingRepo repository.ListingRepository,
	historyRepo repository.PriceHistoryRepository,
	ex HeuristicExtractor,
	guard security.SSRFGuardService,
	httpClient *http.Client,
	maxBodySize int64,
	metrics CheckMetricsRecorder,
	logger *slog.Logger,
) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		listingRepo: listingRepo,
		historyRepo: historyRepo,
		extractor:   ex,
		guard:       guard,
		httpClient:  httpClient,
		maxBodySize: maxBodySize,
		metrics:     metrics,
		logger:      logger,
	}
}

// Check はリスティングのページを再取得し、価格が変動していれば更新する。
// 価格の変動有無に関わらずupdated_atを更新し、次回の対象選定から外す。
func (c *Checker) Check(ctx context.Context, listing *model.Listing) error {
	if err := c.guard.ValidateURL(listing.URL); err != nil {
		return fmt.Errorf("URLの検証に失敗しました: %w", err)
	}

	html, err := c.fetchPage(ctx, listing.URL)
	if err != nil {
		return err
	}

	product := c.extractor.ExtractHeuristics(html, listing.URL)
	if product == nil {
		return fmt.Errorf("商品情報を抽出できませんでした")
	}

	newPrice, ok := parsePriceAmount(product.Price)
	if !ok {
		return fmt.Errorf("価格を解釈できませんでした: %q", product.Price)
	}

	priceChanged := newPrice != listing.CurrentPrice
	if priceChanged {
		baseline := listing.CurrentPrice
		if listing.OriginalPrice != nil {
			baseline = *listing.OriginalPrice
		}
		oldPrice := listing.CurrentPrice
		listing.CurrentPrice = newPrice
		listing.PriceDropped = newPrice < baseline

		c.logger.Info("価格の変動を検出しました",
			slog.String("listing_id", listing.ID),
			slog.Int64("old_price", oldPrice),
			slog.Int64("new_price", newPrice),
			slog.Bool("price_dropped", listing.PriceDropped),
		)
		if listing.PriceDropped && c.metrics != nil {
			c.metrics.RecordPriceDrop()
		}
	}
	listing.UpdatedAt = time.Now()

	if err := c.listingRepo.Update(ctx, listing); err != nil {
		return fmt.Errorf("リスティングの更新に失敗しました: %w", err)
	}

	if priceChanged {
		entry := &model.PriceHistoryEntry{
			ID:         uuid.New().String(),
			ListingID:  listing.ID,
			Price:      newPrice,
			Source:     model.PriceSourceScrape,
			RecordedAt: time.Now(),
		}
		if err := c.historyRepo.Create(ctx, entry); err != nil {
			c.logger.Warn("価格履歴の追記に失敗しました",
				slog.String("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// fetchPage はリスティングのページを取得し、上限付きでボディを読み取る。
func (c *Checker) fetchPage(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Grabbit/1.0 (price check)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("ページがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("ボディの読み取りに失敗しました: %w", err)
	}
	return string(body), nil
}

// amountRe は価格テキストから数値部分を検出するパターン。
var amountRe = regexp.MustCompile(`[\d,]+(\.\d+)?`)

// parsePriceAmount は通貨記号付きの価格テキストから整数金額を取り出す。
// "NZ$1,500.00" -> 1500。小数部は切り捨てる。
func parsePriceAmount(price string) (int64, bool) {
	match := amountRe.FindString(price)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", "")

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return int64(value), true
}
