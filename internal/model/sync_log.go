// Package model はドメインモデルを定義する。
package model

import "time"

// SyncLog は1回のバッチ同期の監査記録を表す。
// 同期開始時に作成され、完了時にカウンタと完了日時が確定する。
type SyncLog struct {
	ID           string
	UserID       string
	ItemsSynced  int
	ItemsFailed  int
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}
