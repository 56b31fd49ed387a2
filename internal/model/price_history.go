// Package model はドメインモデルを定義する。
package model

import "time"

// PriceSource は価格観測の発生源を表す。
type PriceSource string

const (
	// PriceSourceSync は拡張機能からのバッチ同期による観測。
	PriceSourceSync PriceSource = "sync"
	// PriceSourceManual はユーザーの手動編集による観測。
	PriceSourceManual PriceSource = "manual"
	// PriceSourceScrape はワーカーの自動再チェックによる観測。
	PriceSourceScrape PriceSource = "scrape"
)

// PriceHistoryEntry はリスティング価格のある時点での観測を表す。
// 追記専用であり、作成後に更新・削除されることはない。
type PriceHistoryEntry struct {
	ID         string
	ListingID  string
	Price      int64
	Source     PriceSource
	RecordedAt time.Time
}
