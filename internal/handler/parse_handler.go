package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grabbit/grabbit/internal/extractor"
	"github.com/grabbit/grabbit/internal/model"
)

// maxParseHTMLBytes は抽出リクエストで受け付けるHTMLの最大バイト数。
const maxParseHTMLBytes = 2 << 20 // 2MiB

// ProductExtractorInterface は抽出ハンドラーが必要とするインターフェース。
type ProductExtractorInterface interface {
	// Extract はHTMLと取得元URLから商品情報を抽出する。
	Extract(ctx context.Context, html, rawURL string) (*extractor.Product, error)
}

// ParseMetricsRecorder は抽出結果のメトリクス記録インターフェース。
type ParseMetricsRecorder interface {
	RecordParse(method string)
	RecordParseFailure()
}

// ParseHandler は商品抽出のHTTPハンドラー。
type ParseHandler struct {
	extractor ProductExtractorInterface
	metrics   ParseMetricsRecorder // nilの場合は記録しない
}

// NewParseHandler はParseHandlerを生成する。
func NewParseHandler(ex ProductExtractorInterface, metrics ParseMetricsRecorder) *ParseHandler {
	return &ParseHandler{extractor: ex, metrics: metrics}
}

// parseRequest は商品抽出リクエストのボディ。
type parseRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// Parse は商品ページのHTMLから構造化された商品情報を抽出する。
// 保存前のプレビューとして拡張機能から呼ばれる。
// POST /api/parse-product
func (h *ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req parseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxParseHTMLBytes)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("JSONのデコードに失敗しました"))
		return
	}
	if req.URL == "" || req.HTML == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError("urlとhtmlは必須です"))
		return
	}

	product, err := h.extractor.Extract(r.Context(), req.HTML, req.URL)
	if err != nil {
		if errors.Is(err, extractor.ErrNoProductData) {
			if h.metrics != nil {
				h.metrics.RecordParseFailure()
			}
			writeAPIErrorResponse(w, http.StatusUnprocessableEntity, model.NewParseFailedError())
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordParse(string(product.Method))
	}
	writeJSON(w, http.StatusOK, product)
}
