package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grabbit/grabbit/internal/extractor"
	"github.com/grabbit/grabbit/internal/model"
)

// mockExtractor はProductExtractorInterfaceのモック実装。
type mockExtractor struct {
	product *extractor.Product
	err     error
}

func (m *mockExtractor) Extract(_ context.Context, _, _ string) (*extractor.Product, error) {
	return m.product, m.err
}

// TestParseHandler は商品抽出エンドポイントを検証する。
func TestParseHandler(t *testing.T) {
	t.Run("抽出成功は商品情報を返す", func(t *testing.T) {
		h := NewParseHandler(&mockExtractor{product: &extractor.Product{
			Title:  "Mountain Bike",
			Price:  "$450",
			Source: "example.com",
			Method: extractor.MethodHeuristics,
		}}, nil)

		body := `{"url":"https://example.com/item","html":"<html></html>"}`
		w := httptest.NewRecorder()
		h.Parse(w, authedRequest(http.MethodPost, "/api/parse-product", body))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var product extractor.Product
		if err := json.NewDecoder(w.Body).Decode(&product); err != nil {
			t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
		}
		if product.Title != "Mountain Bike" || product.Method != extractor.MethodHeuristics {
			t.Errorf("product = %+v", product)
		}
	})

	t.Run("抽出失敗は422", func(t *testing.T) {
		h := NewParseHandler(&mockExtractor{err: extractor.ErrNoProductData}, nil)

		body := `{"url":"https://example.com/item","html":"<html></html>"}`
		w := httptest.NewRecorder()
		h.Parse(w, authedRequest(http.MethodPost, "/api/parse-product", body))

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}

		var errResp apiErrorResponse
		json.NewDecoder(w.Body).Decode(&errResp)
		if errResp.Code != model.ErrCodeParseFailed {
			t.Errorf("code = %s, want %s", errResp.Code, model.ErrCodeParseFailed)
		}
	})

	t.Run("urlまたはhtmlの欠落は400", func(t *testing.T) {
		h := NewParseHandler(&mockExtractor{}, nil)

		for _, body := range []string{
			`{"html":"<html></html>"}`,
			`{"url":"https://example.com/item"}`,
		} {
			w := httptest.NewRecorder()
			h.Parse(w, authedRequest(http.MethodPost, "/api/parse-product", body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("body=%s: status = %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})
}
