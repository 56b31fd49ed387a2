package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grabbit/grabbit/internal/collection"
	"github.com/grabbit/grabbit/internal/model"
)

// CollectionServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	// Create は新規コレクションを作成する。
	Create(ctx context.Context, userID string, input collection.CreateInput) (*model.Collection, error)
	// List はユーザーのコレクション一覧を集計付きで返す。
	List(ctx context.Context, userID string) ([]*model.CollectionSummary, error)
	// Get はコレクションの詳細を所属リスティング付きで返す。
	Get(ctx context.Context, userID, collectionID string) (*collection.Detail, error)
	// Update はコレクションの可変フィールドを部分更新する。
	Update(ctx context.Context, userID, collectionID string, input collection.UpdateInput) (*model.Collection, error)
	// Delete はコレクションを削除する。
	Delete(ctx context.Context, userID, collectionID string) error
	// AddItems はリスティングをコレクションに追加する。
	AddItems(ctx context.Context, userID, collectionID string, listingIDs []string) (int, error)
	// RemoveItems はリスティングをコレクションから外す。
	RemoveItems(ctx context.Context, userID, collectionID string, listingIDs []string) (int, error)
	// RemoveItem はリスティングを1件コレクションから外す。
	RemoveItem(ctx context.Context, userID, collectionID, listingID string) error
	// GetPack は公開コレクションをスラグで取得する。
	GetPack(ctx context.Context, slug string) (*collection.Pack, error)
	// ClonePack は公開パックを自分のコレクションとして複製する。
	ClonePack(ctx context.Context, userID, slug string) (*collection.Detail, error)
}

// CollectionHandler はコレクション管理のHTTPハンドラー。
type CollectionHandler struct {
	service CollectionServiceInterface
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(service CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// --- レスポンス型 ---

// collectionResponse はコレクションのレスポンス。
type collectionResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Color         string     `json:"color"`
	Icon          string     `json:"icon"`
	CoverImageURL string     `json:"coverImageUrl"`
	IsPublic      bool       `json:"isPublic"`
	Slug          string     `json:"slug,omitempty"`
	ViewsCount    int        `json:"viewsCount"`
	ClonesCount   int        `json:"clonesCount"`
	PublishedAt   *time.Time `json:"publishedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// collectionSummaryResponse は一覧表示用の集計付きレスポンス。
type collectionSummaryResponse struct {
	collectionResponse
	ItemCount  int   `json:"itemCount"`
	TotalValue int64 `json:"totalValue"`
}

// collectionDetailResponse は所属リスティング付きの詳細レスポンス。
type collectionDetailResponse struct {
	collectionResponse
	Items      []listingResponse `json:"items"`
	ItemCount  int               `json:"itemCount"`
	TotalValue int64             `json:"totalValue"`
}

// packResponse は公開パックの閲覧用レスポンス。
type packResponse struct {
	collectionResponse
	Author     string            `json:"author"`
	Items      []listingResponse `json:"items"`
	ItemCount  int               `json:"itemCount"`
	TotalValue int64             `json:"totalValue"`
}

func toCollectionResponse(c *model.Collection) collectionResponse {
	return collectionResponse{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Color:         c.Color,
		Icon:          c.Icon,
		CoverImageURL: c.CoverImageURL,
		IsPublic:      c.IsPublic,
		Slug:          c.Slug,
		ViewsCount:    c.ViewsCount,
		ClonesCount:   c.ClonesCount,
		PublishedAt:   c.PublishedAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toCollectionDetailResponse(d *collection.Detail) collectionDetailResponse {
	items := make([]listingResponse, len(d.Items))
	for i, l := range d.Items {
		items[i] = toListingResponse(l)
	}
	return collectionDetailResponse{
		collectionResponse: toCollectionResponse(d.Collection),
		Items:              items,
		ItemCount:          d.ItemCount,
		TotalValue:         d.TotalValue,
	}
}

// --- リクエスト型 ---

// collectionCreateRequest はコレクション作成リクエストのボディ。
type collectionCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	IsPublic    bool   `json:"isPublic"`
}

// collectionUpdateRequest はコレクション更新リクエストのボディ。
// 省略されたフィールドは更新されない。
type collectionUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	Icon        *string `json:"icon"`
	IsPublic    *bool   `json:"isPublic"`
}

// collectionItemsRequest は所属リスティングの追加・削除リクエストのボディ。
type collectionItemsRequest struct {
	ItemIDs []string `json:"itemIds"`
}

// --- ハンドラー ---

// Create はコレクションを作成する。
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req collectionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("nameは必須です"))
		return
	}

	c, err := h.service.Create(r.Context(), userID, collection.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionResponse(c))
}

// List はコレクション一覧を集計付きで返す。
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]collectionSummaryResponse, len(summaries))
	for i, s := range summaries {
		responses[i] = collectionSummaryResponse{
			collectionResponse: toCollectionResponse(&s.Collection),
			ItemCount:          s.ItemCount,
			TotalValue:         s.TotalValue,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": responses})
}

// Get はコレクションの詳細を所属リスティング付きで返す。
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionDetailResponse(detail))
}

// Update はコレクションを部分更新する。
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req collectionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}

	c, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), collection.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

// Delete はコレクションを削除する。
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// AddItems はリスティングをコレクションに追加する。
func (h *CollectionHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req collectionItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if len(req.ItemIDs) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("itemIdsは必須です"))
		return
	}

	added, err := h.service.AddItems(r.Context(), userID, chi.URLParam(r, "id"), req.ItemIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"addedCount": added})
}

// RemoveItems はリスティングをコレクションからまとめて外す。
func (h *CollectionHandler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req collectionItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if len(req.ItemIDs) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("itemIdsは必須です"))
		return
	}

	removed, err := h.service.RemoveItems(r.Context(), userID, chi.URLParam(r, "id"), req.ItemIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removedCount": removed})
}

// RemoveItem はリスティングを1件コレクションから外す。
func (h *CollectionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	err := h.service.RemoveItem(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPack は公開パックをスラグで返す。認証不要。
func (h *CollectionHandler) GetPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.service.GetPack(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]listingResponse, len(pack.Items))
	for i, l := range pack.Items {
		items[i] = toListingResponse(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pack": packResponse{
		collectionResponse: toCollectionResponse(pack.Collection),
		Author:             pack.Author,
		Items:              items,
		ItemCount:          pack.ItemCount,
		TotalValue:         pack.TotalValue,
	}})
}

// ClonePack は公開パックを自分のコレクションとして複製する。
func (h *CollectionHandler) ClonePack(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.ClonePack(r.Context(), userID, chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionDetailResponse(detail))
}
