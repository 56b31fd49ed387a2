// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, parse, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInvalidPayload  = "INVALID_PAYLOAD"
	ErrCodeInvalidSyncMode = "INVALID_SYNC_MODE"
	ErrCodeParseFailed     = "PARSE_FAILED"
	ErrCodeListingNotFound = "LISTING_NOT_FOUND"
	ErrCodeLimitExceeded   = "LIMIT_EXCEEDED"
	ErrCodeUpgradeRequired = "UPGRADE_REQUIRED"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"

	ErrCodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	ErrCodePackNotFound       = "PACK_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "拡張機能を再接続するか、ログインし直してください。",
	}
}

// NewInvalidPayloadError はリクエストボディ不正エラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストボディの形式を確認してください。",
	}
}

// NewInvalidSyncModeError は未対応の同期モードに対するエラーを生成する。
// replaceモードは削除セマンティクスが未定義のため明示的に拒否する。
func NewInvalidSyncModeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSyncMode,
		Message:  fmt.Sprintf("サポートされていない同期モードです: %s", mode),
		Category: "validation",
		Action:   "syncModeには merge を指定してください。",
	}
}

// NewParseFailedError は商品情報の抽出失敗エラーを生成する。
// ヒューリスティクスとLLMフォールバックの両方が失敗した場合に返される。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "商品情報を抽出できませんでした。",
		Category: "parse",
		Action:   "商品ページのURLとHTMLが正しいか確認してください。",
	}
}

// NewListingNotFoundError はリスティング未検出エラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定されたリスティングが見つかりません: %s", listingID),
		Category: "listing",
		Action:   "リスティングIDを確認してください。",
	}
}

// NewLimitExceededError はリスティング数上限到達エラーを生成する。
// 単件作成パスではハードエラー、バッチ同期内ではスキップとして扱われる。
func NewLimitExceededError(limit, current int) *APIError {
	return &APIError{
		Code:     ErrCodeLimitExceeded,
		Message:  fmt.Sprintf("保存できるリスティング数の上限（%d件）に達しています（現在%d件）。", limit, current),
		Category: "listing",
		Action:   "不要なリスティングを削除するか、Proプランへのアップグレードを検討してください。",
	}
}

// NewUpgradeRequiredError はProプラン限定機能へのアクセスエラーを生成する。
func NewUpgradeRequiredError(feature string) *APIError {
	return &APIError{
		Code:     ErrCodeUpgradeRequired,
		Message:  fmt.Sprintf("%s はProプラン限定の機能です。", feature),
		Category: "listing",
		Action:   "Proプランへアップグレードしてください。",
	}
}

// NewInvalidStateError は拡張機能認証のstateパラメータ不正エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateパラメータが不正です。",
		Category: "validation",
		Action:   "拡張機能の接続フローを最初からやり直してください。",
	}
}

// NewCollectionNotFoundError はコレクション未検出エラーを生成する。
// 他ユーザーの所有も未検出として扱う。
func NewCollectionNotFoundError(collectionID string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionNotFound,
		Message:  fmt.Sprintf("指定されたコレクションが見つかりません: %s", collectionID),
		Category: "collection",
		Action:   "コレクションIDを確認してください。",
	}
}

// NewPackNotFoundError は公開パック未検出エラーを生成する。
// 非公開に戻されたコレクションのスラグも未検出として扱う。
func NewPackNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodePackNotFound,
		Message:  fmt.Sprintf("指定されたパックが見つかりません: %s", slug),
		Category: "collection",
		Action:   "共有リンクが正しいか確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
