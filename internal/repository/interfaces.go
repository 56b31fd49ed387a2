// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/grabbit/grabbit/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExtensionTokenHash は拡張機能トークンのハッシュでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByExtensionTokenHash(ctx context.Context, tokenHash string) (*model.User, error)

	// UpdateExtensionToken はユーザーの拡張機能トークンハッシュを差し替える。
	// 旧トークンは同時に無効になる。
	UpdateExtensionToken(ctx context.Context, userID, tokenHash string, createdAt time.Time) error

	// UpdateLastSyncAt はユーザーの最終同期日時を更新する。
	UpdateLastSyncAt(ctx context.Context, userID string, syncedAt time.Time) error
}

// ListingRepository はリスティングデータの永続化インターフェース。
// (user_id, external_id) の一意性を前提とした検索とCRUD操作を提供する。
type ListingRepository interface {
	// FindByID は指定IDのリスティングを取得する。見つからない場合はnilを返す。
	// 論理削除済みの行も返す（呼び出し側でis_deletedを判断する）。
	FindByID(ctx context.Context, id string) (*model.Listing, error)

	// FindByUserAndExternalID はユーザーIDと外部IDでリスティングを検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndExternalID(ctx context.Context, userID, externalID string) (*model.Listing, error)

	// MapByExternalIDs は指定した外部ID集合に一致するユーザーのリスティングを
	// external_idをキーとするマップで返す。バッチ同期開始時のスナップショット取得に使用する。
	MapByExternalIDs(ctx context.Context, userID string, externalIDs []string) (map[string]*model.Listing, error)

	// CountActiveByUserID はユーザーのアクティブな（論理削除されていない）リスティング数を返す。
	CountActiveByUserID(ctx context.Context, userID string) (int, error)

	// Create は新規リスティングを作成する。
	Create(ctx context.Context, listing *model.Listing) error

	// Update は既存リスティングの可変フィールドを上書き更新する。
	// original_priceは更新対象に含めない（作成時に1回だけ設定される）。
	Update(ctx context.Context, listing *model.Listing) error

	// SoftDelete はリスティングを論理削除する。行自体は保持される。
	// 対象が存在しない場合はmodel.ErrCodeListingNotFoundのAPIErrorを返す。
	SoftDelete(ctx context.Context, userID, id string) error

	// ListByUser はユーザーのアクティブなリスティング一覧を絞り込み・ソート・
	// ページネーション付きで返す。2番目の戻り値は絞り込み後の総件数。
	ListByUser(ctx context.Context, userID string, query model.ListingQuery) ([]*model.Listing, int, error)

	// ListDueForPriceCheck は自動価格再チェックの対象リスティングを返す。
	// Proティアのユーザーが持つアクティブ・非アーカイブのリスティングのうち、
	// updated_atがolderThanより古いものをlimit件まで取得する。
	ListDueForPriceCheck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Listing, error)
}

// CollectionRepository はコレクションと所属リスティングの永続化インターフェース。
type CollectionRepository interface {
	// Create は新規コレクションを作成する。
	Create(ctx context.Context, c *model.Collection) error

	// FindByIDAndUser は指定ユーザーが所有するコレクションを取得する。
	// 見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Collection, error)

	// FindPublicBySlug は公開中のコレクションをスラグで検索する。
	// 非公開のものは一致させない。見つからない場合はnilを返す。
	FindPublicBySlug(ctx context.Context, slug string) (*model.Collection, error)

	// ListByUser はユーザーのコレクション一覧を更新日時の降順で返す。
	// 件数と合計金額はアクティブなリスティングのみを集計する。
	ListByUser(ctx context.Context, userID string) ([]*model.CollectionSummary, error)

	// Update は既存コレクションの可変フィールドを上書き更新する。
	// views_count・clones_countは更新対象に含めない（専用メソッドで加算する）。
	Update(ctx context.Context, c *model.Collection) error

	// Delete はコレクションを削除する。所属情報も連鎖削除される。
	// 対象が存在しない場合はmodel.ErrCodeCollectionNotFoundのAPIErrorを返す。
	Delete(ctx context.Context, userID, id string) error

	// AddItems はリスティングをコレクションに追加する。
	// 既に所属しているものは無視され、実際に追加された件数を返す。
	AddItems(ctx context.Context, collectionID string, listingIDs []string) (int, error)

	// RemoveItems はリスティングをコレクションから外す。
	// リスティング自体は削除されない。実際に外された件数を返す。
	RemoveItems(ctx context.Context, collectionID string, listingIDs []string) (int, error)

	// ListItems はコレクション内のアクティブなリスティングを追加日時の降順で返す。
	ListItems(ctx context.Context, collectionID string) ([]*model.Listing, error)

	// SetCoverFromFirstItem はカバー画像が未設定の場合に限り、
	// 最初に追加されたリスティングの画像をカバーに設定する。
	SetCoverFromFirstItem(ctx context.Context, collectionID string) error

	// IncrementViews はパック閲覧数を1加算する。
	IncrementViews(ctx context.Context, id string) error

	// IncrementClones はパック複製数を1加算する。
	IncrementClones(ctx context.Context, id string) error
}

// PriceHistoryRepository は価格履歴の永続化インターフェース。
// 履歴は追記専用であり、更新・削除操作は提供しない。
type PriceHistoryRepository interface {
	// Create は価格観測を1件追記する。
	Create(ctx context.Context, entry *model.PriceHistoryEntry) error

	// ListByListingID はリスティングの価格履歴を記録日時の降順で返す。
	ListByListingID(ctx context.Context, listingID string, limit int) ([]*model.PriceHistoryEntry, error)
}

// SyncLogRepository はバッチ同期の監査記録の永続化インターフェース。
type SyncLogRepository interface {
	// Create は同期開始時のログ行を作成する。
	Create(ctx context.Context, log *model.SyncLog) error

	// Finalize は同期完了時にカウンタと完了日時を確定する。
	Finalize(ctx context.Context, id string, synced, failed int, completedAt time.Time, errMsg string) error
}
