// Package model はドメインモデルを定義する。
package model

import (
	"net/url"
	"strings"
	"time"
)

// Listing はユーザーが保存した商品リスティングを表す。
// (user_id, external_id) が一意であり、同一商品の再保存は必ず更新になる。
type Listing struct {
	ID            string
	UserID        string
	ExternalID    string // 取得元URLから導出される安定ID（拡張機能が生成）
	URL           string
	Title         string
	CurrentPrice  int64
	OriginalPrice *int64 // 初回保存時の価格。作成時に1回だけ設定され、以後変更されない
	PriceDropped  bool
	Year          *int
	Mileage       *int
	Make          string
	Model         string
	Location      string
	ImageURL      string
	Platform      Platform
	Notes         string
	IsArchived    bool
	IsDeleted     bool
	SavedAt       time.Time
	UpdatedAt     time.Time
}

// Platform はリスティングの取得元プラットフォームを表す。
type Platform string

const (
	// PlatformFacebook はFacebook Marketplace。
	PlatformFacebook Platform = "facebook"
	// PlatformAmazon はAmazon。
	PlatformAmazon Platform = "amazon"
	// PlatformEbay はeBay。
	PlatformEbay Platform = "ebay"
	// PlatformTrademe はTrade Me。
	PlatformTrademe Platform = "trademe"
	// PlatformOther はその他のサイト。
	PlatformOther Platform = "other"
)

// PlatformFromURL はリスティングURLのホスト名から取得元プラットフォームを判定する。
// 既知のどのプラットフォームにも一致しない場合はPlatformOtherを返す。
func PlatformFromURL(rawURL string) Platform {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PlatformOther
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "facebook.com"):
		return PlatformFacebook
	case strings.Contains(host, "amazon."):
		return PlatformAmazon
	case strings.Contains(host, "ebay."):
		return PlatformEbay
	case strings.Contains(host, "trademe.co.nz"):
		return PlatformTrademe
	}
	return PlatformOther
}

// IncomingListing は拡張機能から送信される未保存のリスティングデータを表す。
// 同期オーケストレーターがReconcilerに渡す入力となる。
type IncomingListing struct {
	ExternalID string
	URL        string
	Title      string
	Price      int64
	Year       *int
	Mileage    *int
	Make       string
	Model      string
	Location   string
	ImageURL   string
	SavedAt    *time.Time
}

// ListingSort はリスティング一覧のソートキーを表す。
type ListingSort string

const (
	// ListingSortSavedAt は保存日時順。
	ListingSortSavedAt ListingSort = "savedAt"
	// ListingSortPrice は現在価格順。
	ListingSortPrice ListingSort = "price"
	// ListingSortYear は年式順。
	ListingSortYear ListingSort = "year"
	// ListingSortMileage は走行距離順。
	ListingSortMileage ListingSort = "mileage"
)

// ListingQuery はリスティング一覧の絞り込み条件を表す。
// nilのフィールドは条件として適用されない。
type ListingQuery struct {
	Platform     Platform
	Make         string
	MinPrice     *int64
	MaxPrice     *int64
	MinYear      *int
	MaxYear      *int
	MaxMileage   *int
	PriceDropped bool
	Sort         ListingSort
	Descending   bool
	Page         int
	Limit        int
}
