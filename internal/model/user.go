// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証自体は外部IdPに委譲しており、ここでは購読ティアと
// 拡張機能トークンのハッシュのみを保持する。
type User struct {
	ID                      string
	Email                   string
	SubscriptionTier        SubscriptionTier
	ExtensionTokenHash      string
	ExtensionTokenCreatedAt *time.Time
	LastSyncAt              *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
