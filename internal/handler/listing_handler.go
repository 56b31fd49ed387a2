package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grabbit/grabbit/internal/listing"
	"github.com/grabbit/grabbit/internal/model"
)

// ListingServiceInterface はリスティングハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	// Create は単体のリスティングを保存する。上限到達時は拒否する。
	Create(ctx context.Context, userID string, input listing.CreateInput) (*model.Listing, error)
	// List はユーザーのリスティング一覧を絞り込み・ページネーション付きで返す。
	List(ctx context.Context, userID string, query model.ListingQuery) (*listing.Page, error)
	// Get は指定IDのリスティングを返す。
	Get(ctx context.Context, userID, listingID string) (*model.Listing, error)
	// Update はリスティングの可変フィールドを部分更新する。
	Update(ctx context.Context, userID, listingID string, input listing.UpdateInput) (*model.Listing, error)
	// Delete はリスティングを論理削除する。
	Delete(ctx context.Context, userID, listingID string) error
	// PriceHistory はリスティングの価格履歴を返す。
	PriceHistory(ctx context.Context, userID, listingID string) ([]*model.PriceHistoryEntry, error)
	// ExportCSV はリスティングをCSV形式で書き出す。
	ExportCSV(ctx context.Context, userID string, w io.Writer) error
}

// ListingHandler はリスティング管理のHTTPハンドラー。
type ListingHandler struct {
	service ListingServiceInterface
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ListingServiceInterface) *ListingHandler {
	return &ListingHandler{service: service}
}

// --- レスポンス型 ---

// listingResponse はリスティングのレスポンス。
type listingResponse struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"externalId"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	CurrentPrice  int64     `json:"currentPrice"`
	OriginalPrice *int64    `json:"originalPrice"`
	PriceDropped  bool      `json:"priceDropped"`
	Year          *int      `json:"year"`
	Mileage       *int      `json:"mileage"`
	Make          string    `json:"make"`
	Model         string    `json:"model"`
	Location      string    `json:"location"`
	ImageURL      string    `json:"imageUrl"`
	Platform      string    `json:"platform"`
	Notes         string    `json:"notes"`
	IsArchived    bool      `json:"isArchived"`
	SavedAt       time.Time `json:"savedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// listingListResponse はリスティング一覧のレスポンス。
type listingListResponse struct {
	Listings []listingResponse `json:"listings"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// priceHistoryResponse は価格履歴エントリのレスポンス。
type priceHistoryResponse struct {
	Price      int64     `json:"price"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recordedAt"`
}

// listingCreateRequest は単体リスティング保存リクエストのボディ。
type listingCreateRequest struct {
	ExternalID string `json:"externalId"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	Year       *int   `json:"year"`
	Mileage    *int   `json:"mileage"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	Location   string `json:"location"`
	ImageURL   string `json:"imageUrl"`
	Notes      string `json:"notes"`
}

// listingUpdateRequest はリスティング部分更新リクエストのボディ。
type listingUpdateRequest struct {
	Title        *string `json:"title,omitempty"`
	CurrentPrice *int64  `json:"currentPrice,omitempty"`
	Year         *int    `json:"year,omitempty"`
	Mileage      *int    `json:"mileage,omitempty"`
	Make         *string `json:"make,omitempty"`
	Model        *string `json:"model,omitempty"`
	Location     *string `json:"location,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	IsArchived   *bool   `json:"isArchived,omitempty"`
}

func toListingResponse(l *model.Listing) listingResponse {
	return listingResponse{
		ID:            l.ID,
		ExternalID:    l.ExternalID,
		URL:           l.URL,
		Title:         l.Title,
		CurrentPrice:  l.CurrentPrice,
		OriginalPrice: l.OriginalPrice,
		PriceDropped:  l.PriceDropped,
		Year:          l.Year,
		Mileage:       l.Mileage,
		Make:          l.Make,
		Model:         l.Model,
		Location:      l.Location,
		ImageURL:      l.ImageURL,
		Platform:      string(l.Platform),
		Notes:         l.Notes,
		IsArchived:    l.IsArchived,
		SavedAt:       l.SavedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

// Create は単体のリスティングを保存する。
// POST /api/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req listingCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if req.URL == "" || req.Title == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("urlとtitleは必須です"))
		return
	}
	if req.Price < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("priceは0以上である必要があります"))
		return
	}

	l, err := h.service.Create(r.Context(), userID, listing.CreateInput{
		ExternalID: req.ExternalID,
		URL:        req.URL,
		Title:      req.Title,
		Price:      req.Price,
		Year:       req.Year,
		Mileage:    req.Mileage,
		Make:       req.Make,
		Model:      req.Model,
		Location:   req.Location,
		ImageURL:   req.ImageURL,
		Notes:      req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

// List はリスティング一覧を取得する。
// GET /api/listings?platform=&make=&minPrice=&maxPrice=&minYear=&maxYear=&maxMileage=&priceDropped=&sort=&order=&page=&limit=
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := parseListingQuery(r)
	page, err := h.service.List(r.Context(), userID, query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listingListResponse{
		Listings: make([]listingResponse, len(page.Listings)),
		Total:    page.Total,
		Page:     page.Page,
		Limit:    page.Limit,
	}
	for i, l := range page.Listings {
		resp.Listings[i] = toListingResponse(l)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はリスティング詳細を取得する。
// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	l, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// Update はリスティングを部分更新する。
// PATCH /api/listings/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req listingUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if req.CurrentPrice != nil && *req.CurrentPrice < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("currentPriceは0以上である必要があります"))
		return
	}

	l, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), listing.UpdateInput{
		Title:        req.Title,
		CurrentPrice: req.CurrentPrice,
		Year:         req.Year,
		Mileage:      req.Mileage,
		Make:         req.Make,
		Model:        req.Model,
		Location:     req.Location,
		Notes:        req.Notes,
		IsArchived:   req.IsArchived,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// Delete はリスティングを論理削除する。
// DELETE /api/listings/{id}
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History はリスティングの価格履歴を取得する。
// GET /api/listings/{id}/history
func (h *ListingHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.PriceHistory(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]priceHistoryResponse, len(entries))
	for i, entry := range entries {
		resp[i] = priceHistoryResponse{
			Price:      entry.Price,
			Source:     string(entry.Source),
			RecordedAt: entry.RecordedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": resp})
}

// Export はリスティング一覧をCSVでダウンロードする。
// GET /api/export
func (h *ListingHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// ExportCSVはボディの書き込み開始前にティア判定を行う
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="listings.csv"`)

	if err := h.service.ExportCSV(r.Context(), userID, w); err != nil {
		// まだボディ未書き込みであればエラーレスポンスに切り替える
		w.Header().Del("Content-Disposition")
		handleServiceError(w, err)
		return
	}
}

// parseListingQuery はクエリパラメータから絞り込み条件を組み立てる。
// 数値として解釈できないパラメータは無視する。
func parseListingQuery(r *http.Request) model.ListingQuery {
	q := r.URL.Query()

	query := model.ListingQuery{
		Platform:     model.Platform(q.Get("platform")),
		Make:         q.Get("make"),
		PriceDropped: q.Get("priceDropped") == "true",
		Sort:         model.ListingSort(q.Get("sort")),
		Descending:   q.Get("order") != "asc",
	}

	if v, err := strconv.ParseInt(q.Get("minPrice"), 10, 64); err == nil {
		query.MinPrice = &v
	}
	if v, err := strconv.ParseInt(q.Get("maxPrice"), 10, 64); err == nil {
		query.MaxPrice = &v
	}
	if v, err := strconv.Atoi(q.Get("minYear")); err == nil {
		query.MinYear = &v
	}
	if v, err := strconv.Atoi(q.Get("maxYear")); err == nil {
		query.MaxYear = &v
	}
	if v, err := strconv.Atoi(q.Get("maxMileage")); err == nil {
		query.MaxMileage = &v
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		query.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		query.Limit = v
	}

	return query
}
