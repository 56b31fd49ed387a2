// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザー入力のメモや抽出された商品説明から
// HTMLタグを除去し、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicyにより、一切のタグを通過させない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// リスティングのメモ保存時、および抽出された商品説明の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// リスティングのメモと商品説明はリッチテキストではないため、
	// 許可リスト方式ではなく全タグ除去方式を採用する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
// タグ除去後の前後空白もあわせて除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
