package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grabbit/grabbit/internal/middleware"
	"github.com/grabbit/grabbit/internal/model"
	syncsvc "github.com/grabbit/grabbit/internal/sync"
)

// mockSyncService はSyncServiceInterfaceのモック実装。
type mockSyncService struct {
	report      *syncsvc.Report
	err         error
	lastRequest syncsvc.BatchRequest
}

func (m *mockSyncService) SyncBatch(_ context.Context, _ string, req syncsvc.BatchRequest) (*syncsvc.Report, error) {
	m.lastRequest = req
	return m.report, m.err
}

// authedRequest は認証済みユーザーIDを注入したリクエストを生成する。
func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

// TestSyncHandler はバッチ同期エンドポイントを検証する。
func TestSyncHandler(t *testing.T) {
	t.Run("正常な同期はレポートを返す", func(t *testing.T) {
		service := &mockSyncService{report: &syncsvc.Report{
			Success: true,
			Synced:  2,
			Created: 1,
			Updated: 1,
			PriceChanges: []syncsvc.PriceChange{
				{ListingID: "l1", OldPrice: 100, NewPrice: 80},
			},
		}}
		h := NewSyncHandler(service)

		body := `{"syncMode":"merge","listings":[{"externalId":"a","url":"https://example.com/a","title":"A","price":500},{"externalId":"b","url":"https://example.com/b","title":"B","price":80}]}`
		w := httptest.NewRecorder()
		h.Sync(w, authedRequest(http.MethodPost, "/api/listings/sync", body))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}

		var report syncsvc.Report
		if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
			t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
		}
		if !report.Success || report.Synced != 2 {
			t.Errorf("report = %+v, want Success Synced=2", report)
		}
		if len(service.lastRequest.Listings) != 2 {
			t.Errorf("サービスに渡されたアイテム数 = %d, want 2", len(service.lastRequest.Listings))
		}
	})

	t.Run("不正なJSONは400", func(t *testing.T) {
		h := NewSyncHandler(&mockSyncService{})
		w := httptest.NewRecorder()
		h.Sync(w, authedRequest(http.MethodPost, "/api/listings/sync", "{not json"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("listings欠落はnilとしてサービスに渡る", func(t *testing.T) {
		service := &mockSyncService{err: model.NewInvalidPayloadError("listingsフィールドは必須です")}
		h := NewSyncHandler(service)
		w := httptest.NewRecorder()
		h.Sync(w, authedRequest(http.MethodPost, "/api/listings/sync", `{"syncMode":"merge"}`))

		if service.lastRequest.Listings != nil {
			t.Error("listings欠落がnilとして渡されていません")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("merge以外の同期モードは400", func(t *testing.T) {
		service := &mockSyncService{err: model.NewInvalidSyncModeError("replace")}
		h := NewSyncHandler(service)
		w := httptest.NewRecorder()
		h.Sync(w, authedRequest(http.MethodPost, "/api/listings/sync", `{"syncMode":"replace","listings":[]}`))

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}

		var errResp apiErrorResponse
		json.NewDecoder(w.Body).Decode(&errResp)
		if errResp.Code != model.ErrCodeInvalidSyncMode {
			t.Errorf("code = %s, want %s", errResp.Code, model.ErrCodeInvalidSyncMode)
		}
	})

	t.Run("未認証は401", func(t *testing.T) {
		h := NewSyncHandler(&mockSyncService{})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/listings/sync", strings.NewReader("{}"))
		h.Sync(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
