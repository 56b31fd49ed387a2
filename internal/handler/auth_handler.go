package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/grabbit/grabbit/internal/auth"
	"github.com/grabbit/grabbit/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// IssueToken はユーザーの拡張機能トークンを発行し、stateに紐づけて保管する。
	IssueToken(ctx context.Context, userID, state string) error
	// ClaimToken はstateに紐づくトークンを一度だけ返す。
	ClaimToken(ctx context.Context, state string) (*auth.TokenGrant, error)
}

// AuthHandler は拡張機能トークン受け渡しのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// issueTokenRequest はトークン発行リクエストのボディ。
type issueTokenRequest struct {
	State string `json:"state"`
}

// IssueToken はログイン済みのWebアプリからのトークン発行要求を処理する。
// POST /api/auth/token
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}

	if err := h.service.IssueToken(r.Context(), userID, req.State); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"pending": true})
}

// ClaimToken は拡張機能からのトークン受け取りポーリングを処理する。
// 発行済みであればトークンを返し、以後同じstateでは受け取れない。
// 未発行の場合は202を返し、拡張機能は再ポーリングする。
// GET /api/auth/token?state=xxx
func (h *AuthHandler) ClaimToken(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	grant, err := h.service.ClaimToken(r.Context(), state)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if grant == nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"pending": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": grant.Token})
}
