package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grabbit/grabbit/internal/listing"
	"github.com/grabbit/grabbit/internal/model"
)

// mockListingService はListingServiceInterfaceのモック実装。
type mockListingService struct {
	page            *listing.Page
	lastQuery       model.ListingQuery
	listing         *model.Listing
	lastInput       listing.UpdateInput
	lastCreateInput listing.CreateInput
	history         []*model.PriceHistoryEntry
	err             error
	deleted         []string
	exportCSV       string
}

func (m *mockListingService) Create(_ context.Context, _ string, input listing.CreateInput) (*model.Listing, error) {
	m.lastCreateInput = input
	return m.listing, m.err
}

func (m *mockListingService) List(_ context.Context, _ string, query model.ListingQuery) (*listing.Page, error) {
	m.lastQuery = query
	return m.page, m.err
}

func (m *mockListingService) Get(_ context.Context, _, _ string) (*model.Listing, error) {
	return m.listing, m.err
}

func (m *mockListingService) Update(_ context.Context, _, _ string, input listing.UpdateInput) (*model.Listing, error) {
	m.lastInput = input
	return m.listing, m.err
}

func (m *mockListingService) Delete(_ context.Context, _, id string) error {
	m.deleted = append(m.deleted, id)
	return m.err
}

func (m *mockListingService) PriceHistory(_ context.Context, _, _ string) ([]*model.PriceHistoryEntry, error) {
	return m.history, m.err
}

func (m *mockListingService) ExportCSV(_ context.Context, _ string, w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	w.Write([]byte(m.exportCSV))
	return nil
}

// TestListingQueryParsing はクエリパラメータの解釈を検証する。
func TestListingQueryParsing(t *testing.T) {
	service := &mockListingService{page: &listing.Page{Listings: []*model.Listing{}}}
	h := NewListingHandler(service)

	target := "/api/listings?platform=trademe&make=Toyota&minPrice=5000&maxPrice=20000&minYear=2015&maxMileage=100000&priceDropped=true&sort=price&order=asc&page=2&limit=10"
	w := httptest.NewRecorder()
	h.List(w, authedRequest(http.MethodGet, target, ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	q := service.lastQuery
	if q.Platform != model.PlatformTrademe || q.Make != "Toyota" {
		t.Errorf("platform/make = %s/%s", q.Platform, q.Make)
	}
	if q.MinPrice == nil || *q.MinPrice != 5000 || q.MaxPrice == nil || *q.MaxPrice != 20000 {
		t.Error("価格範囲が解釈されていません")
	}
	if q.MinYear == nil || *q.MinYear != 2015 {
		t.Error("minYearが解釈されていません")
	}
	if q.MaxMileage == nil || *q.MaxMileage != 100000 {
		t.Error("maxMileageが解釈されていません")
	}
	if !q.PriceDropped {
		t.Error("priceDroppedが解釈されていません")
	}
	if q.Sort != model.ListingSortPrice || q.Descending {
		t.Errorf("sort = %s descending = %v, want price昇順", q.Sort, q.Descending)
	}
	if q.Page != 2 || q.Limit != 10 {
		t.Errorf("page/limit = %d/%d, want 2/10", q.Page, q.Limit)
	}
}

// TestListingCreateHandler は単体保存エンドポイントを検証する。
func TestListingCreateHandler(t *testing.T) {
	t.Run("作成成功は201", func(t *testing.T) {
		service := &mockListingService{listing: &model.Listing{ID: "l1", Title: "Bike", CurrentPrice: 450}}
		h := NewListingHandler(service)

		req := authedRequest(http.MethodPost, "/api/listings", `{"url":"https://example.com/1","title":"Bike","price":450}`)
		w := httptest.NewRecorder()
		h.Create(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		if service.lastCreateInput.URL != "https://example.com/1" || service.lastCreateInput.Price != 450 {
			t.Errorf("input = %+v, サービスに渡っていません", service.lastCreateInput)
		}
	})

	t.Run("urlまたはtitle欠落は400", func(t *testing.T) {
		h := NewListingHandler(&mockListingService{})

		for _, body := range []string{`{"title":"Bike","price":450}`, `{"url":"https://example.com/1","price":450}`} {
			w := httptest.NewRecorder()
			h.Create(w, authedRequest(http.MethodPost, "/api/listings", body))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusBadRequest, body)
			}
		}
	})

	t.Run("上限到達は403", func(t *testing.T) {
		service := &mockListingService{err: model.NewLimitExceededError(25, 25)}
		h := NewListingHandler(service)

		req := authedRequest(http.MethodPost, "/api/listings", `{"url":"https://example.com/1","title":"Bike","price":450}`)
		w := httptest.NewRecorder()
		h.Create(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestListingUpdateHandler は部分更新エンドポイントを検証する。
func TestListingUpdateHandler(t *testing.T) {
	service := &mockListingService{listing: &model.Listing{ID: "l1", CurrentPrice: 8000}}
	h := NewListingHandler(service)

	t.Run("価格とメモの更新", func(t *testing.T) {
		req := authedRequest(http.MethodPatch, "/api/listings/l1", `{"currentPrice":8000,"notes":"メモ"}`)
		w := httptest.NewRecorder()
		h.Update(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		if service.lastInput.CurrentPrice == nil || *service.lastInput.CurrentPrice != 8000 {
			t.Error("currentPriceがサービスに渡っていません")
		}
		if service.lastInput.Notes == nil || *service.lastInput.Notes != "メモ" {
			t.Error("notesがサービスに渡っていません")
		}
		if service.lastInput.Title != nil {
			t.Error("指定していないフィールドが渡っています")
		}
	})

	t.Run("負の価格は400", func(t *testing.T) {
		req := authedRequest(http.MethodPatch, "/api/listings/l1", `{"currentPrice":-1}`)
		w := httptest.NewRecorder()
		h.Update(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestListingDeleteHandler は削除エンドポイントを検証する。
func TestListingDeleteHandler(t *testing.T) {
	t.Run("削除成功は204", func(t *testing.T) {
		service := &mockListingService{}
		h := NewListingHandler(service)

		w := httptest.NewRecorder()
		h.Delete(w, authedRequest(http.MethodDelete, "/api/listings/l1", ""))

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})

	t.Run("不存在は404", func(t *testing.T) {
		service := &mockListingService{err: model.NewListingNotFoundError("missing")}
		h := NewListingHandler(service)

		w := httptest.NewRecorder()
		h.Delete(w, authedRequest(http.MethodDelete, "/api/listings/missing", ""))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestListingHistoryHandler は価格履歴エンドポイントを検証する。
func TestListingHistoryHandler(t *testing.T) {
	t.Run("proティアは履歴を取得できる", func(t *testing.T) {
		service := &mockListingService{history: []*model.PriceHistoryEntry{
			{Price: 100, Source: model.PriceSourceSync, RecordedAt: time.Now()},
			{Price: 80, Source: model.PriceSourceScrape, RecordedAt: time.Now()},
		}}
		h := NewListingHandler(service)

		w := httptest.NewRecorder()
		h.History(w, authedRequest(http.MethodGet, "/api/listings/l1/history", ""))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}

		var resp struct {
			History []priceHistoryResponse `json:"history"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.History) != 2 {
			t.Errorf("history = %d件, want 2件", len(resp.History))
		}
	})

	t.Run("freeティアは403", func(t *testing.T) {
		service := &mockListingService{err: model.NewUpgradeRequiredError("価格履歴の閲覧")}
		h := NewListingHandler(service)

		w := httptest.NewRecorder()
		h.History(w, authedRequest(http.MethodGet, "/api/listings/l1/history", ""))

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestListingExportHandler はCSVエクスポートエンドポイントを検証する。
func TestListingExportHandler(t *testing.T) {
	service := &mockListingService{exportCSV: "title,url\nBike,https://example.com/1\n"}
	h := NewListingHandler(service)

	w := httptest.NewRecorder()
	h.Export(w, authedRequest(http.MethodGet, "/api/export", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Content-Dispositionが設定されていません")
	}
	if w.Body.String() != service.exportCSV {
		t.Errorf("body = %q", w.Body.String())
	}
}
