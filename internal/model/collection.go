// Package model はドメインモデルを定義する。
package model

import "time"

// コレクションの外観の既定値。作成時に未指定の場合に適用される。
const (
	DefaultCollectionColor = "#4F46E5"
	DefaultCollectionIcon  = "📦"
)

// Collection はリスティングをまとめるユーザー定義のグループを表す。
// 公開されたコレクションはスラグ経由でパックとして誰でも閲覧できる。
type Collection struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	Color         string
	Icon          string
	CoverImageURL string
	IsPublic      bool
	Slug          string // 公開時のみ設定される。非公開に戻すとクリアされる
	ViewsCount    int
	ClonesCount   int
	PublishedAt   *time.Time // 初回公開日時。再公開しても変わらない
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CollectionSummary は一覧表示用の集計付きコレクション。
// ItemCountとTotalValueはアクティブなリスティングのみを集計する。
type CollectionSummary struct {
	Collection
	ItemCount  int
	TotalValue int64
}
