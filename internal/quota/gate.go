// Package quota はティアごとのリスティング数上限に基づく作成可否判定を提供する。
package quota

import (
	"github.com/grabbit/grabbit/internal/model"
)

// Gate はリスティング作成の可否を判定する。
// 純粋なロジックであり、データベースへのアクセスは行わない。
// 現在件数のスナップショットは呼び出し側が取得して渡す。
type Gate struct{}

// NewGate はGateの新しいインスタンスを生成する。
func NewGate() *Gate {
	return &Gate{}
}

// CanCreate は新規リスティングを1件作成できるかを判定する。
// currentActiveは判定時点のアクティブなリスティング数、
// pendingInBatchは同一バッチ内で先に作成が確定した件数。
// バッチ同期ではスナップショットを1回だけ取り、バッチ内の作成数を
// 加算しながら判定することで、バッチ全体で上限を超えないことを保証する。
func (g *Gate) CanCreate(limits model.SubscriptionLimits, currentActive, pendingInBatch int) bool {
	if limits.Unlimited() {
		return true
	}
	return currentActive+pendingInBatch < limits.MaxListings
}

// Remaining は作成可能な残り件数を返す。無制限の場合はmodel.UnlimitedListingsを返す。
// 上限超過状態（手動削除前のダウングレード等）では0を返す。
func (g *Gate) Remaining(limits model.SubscriptionLimits, currentActive int) int {
	if limits.Unlimited() {
		return model.UnlimitedListings
	}
	remaining := limits.MaxListings - currentActive
	if remaining < 0 {
		return 0
	}
	return remaining
}
