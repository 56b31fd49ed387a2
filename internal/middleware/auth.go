// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/grabbit/grabbit/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はベアラートークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*model.User, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証する
// ミドルウェアを返す。拡張機能とWebアプリの両方がこの方式で認証する。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには統一フォーマットで401を返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				if apiErr, isAPIErr := err.(*model.APIError); isAPIErr {
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				slog.Error("トークンの検証に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
