// Package model はドメインモデルを定義する。
package model

// SubscriptionTier はユーザーの購読ティアを表す。
type SubscriptionTier string

const (
	// TierFree は無料ティア。
	TierFree SubscriptionTier = "free"
	// TierPro は有料ティア。
	TierPro SubscriptionTier = "pro"
)

// UnlimitedListings はリスティング数が無制限であることを表すセンチネル値。
const UnlimitedListings = -1

// SubscriptionLimits はティアごとの静的な利用制限を表す。
// プロセス全体の設定として扱い、実行時に変更されることはない。
type SubscriptionLimits struct {
	MaxListings         int // UnlimitedListingsの場合は無制限
	CanExport           bool
	CanViewPriceHistory bool
}

// LimitsForTier はティアに対応する利用制限を返す。
// ティアの追加はこのswitchへの追加を強制する（デフォルト分岐での暗黙フォールバックをしない）。
// 未知のティア値はデータ不整合とみなし、最も厳しいfreeの制限を適用する。
func LimitsForTier(tier SubscriptionTier) SubscriptionLimits {
	switch tier {
	case TierFree:
		return SubscriptionLimits{
			MaxListings:         25,
			CanExport:           false,
			CanViewPriceHistory: false,
		}
	case TierPro:
		return SubscriptionLimits{
			MaxListings:         UnlimitedListings,
			CanExport:           true,
			CanViewPriceHistory: true,
		}
	}
	return SubscriptionLimits{
		MaxListings:         25,
		CanExport:           false,
		CanViewPriceHistory: false,
	}
}

// Unlimited はリスティング数が無制限かどうかを返す。
func (l SubscriptionLimits) Unlimited() bool {
	return l.MaxListings == UnlimitedListings
}
