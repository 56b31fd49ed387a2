package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/grabbit/grabbit/internal/model"
	syncsvc "github.com/grabbit/grabbit/internal/sync"
)

// maxSyncBatchSize は1回の同期リクエストで受け付けるアイテムの最大件数。
const maxSyncBatchSize = 500

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// SyncBatch はユーザーのバッチ同期を実行し、結果レポートを返す。
	SyncBatch(ctx context.Context, userID string, req syncsvc.BatchRequest) (*syncsvc.Report, error)
}

// SyncHandler はバッチ同期のHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// syncListingRequest は同期リクエスト内のアイテム。
type syncListingRequest struct {
	ExternalID string     `json:"externalId"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Price      int64      `json:"price"`
	Year       *int       `json:"year,omitempty"`
	Mileage    *int       `json:"mileage,omitempty"`
	Make       string     `json:"make,omitempty"`
	Model      string     `json:"model,omitempty"`
	Location   string     `json:"location,omitempty"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	SavedAt    *time.Time `json:"savedAt,omitempty"`
}

// syncRequest はバッチ同期リクエストのボディ。
type syncRequest struct {
	SyncMode string               `json:"syncMode"`
	Listings []syncListingRequest `json:"listings"`
}

// Sync は拡張機能からのバッチ同期を処理する。
// POST /api/listings/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if len(req.Listings) > maxSyncBatchSize {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("1回の同期で送信できるアイテム数を超えています"))
		return
	}

	incoming := make([]model.IncomingListing, len(req.Listings))
	for i, item := range req.Listings {
		incoming[i] = model.IncomingListing{
			ExternalID: item.ExternalID,
			URL:        item.URL,
			Title:      item.Title,
			Price:      item.Price,
			Year:       item.Year,
			Mileage:    item.Mileage,
			Make:       item.Make,
			Model:      item.Model,
			Location:   item.Location,
			ImageURL:   item.ImageURL,
			SavedAt:    item.SavedAt,
		}
	}
	// listings: [] と listings欠落を区別する（欠落は不正なリクエスト）
	if req.Listings == nil {
		incoming = nil
	}

	report, err := h.service.SyncBatch(r.Context(), userID, syncsvc.BatchRequest{
		SyncMode: req.SyncMode,
		Listings: incoming,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
