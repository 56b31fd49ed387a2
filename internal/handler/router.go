package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grabbit/grabbit/internal/metrics"
	"github.com/grabbit/grabbit/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	SyncService       SyncServiceInterface
	Extractor         ProductExtractorInterface
	ListingService    ListingServiceInterface
	CollectionService CollectionServiceInterface
	AuthService       AuthServiceInterface

	// 可観測性
	MetricsCollector *metrics.Collector
	MetricsGatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → BearerAuth → RateLimit(General)
//
// ヘルスチェック・メトリクス・トークン受け取りポーリングは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var httpMetrics middleware.HTTPMetricsRecorder
	if deps.MetricsCollector != nil {
		httpMetrics = deps.MetricsCollector
	}

	syncHandler := NewSyncHandler(deps.SyncService)
	parseHandler := NewParseHandler(deps.Extractor, deps.MetricsCollector)
	listingHandler := NewListingHandler(deps.ListingService)
	collectionHandler := NewCollectionHandler(deps.CollectionService)
	authHandler := NewAuthHandler(deps.AuthService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// トークン受け取りポーリング（拡張機能はまだトークンを持っていない）
	r.Get("/api/auth/token", authHandler.ClaimToken)

	// 公開パックの閲覧（共有リンク経由、認証不要）
	r.Get("/api/packs/{slug}", collectionHandler.GetPack)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Logging → BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(slog.Default(), httpMetrics))
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// バッチ同期（同期専用レート制限を追加）
		r.With(deps.RateLimiter.SyncMiddleware()).Post("/api/listings/sync", syncHandler.Sync)

		// 商品抽出プレビュー
		r.Post("/api/parse-product", parseHandler.Parse)

		// リスティング管理
		r.Route("/api/listings", func(r chi.Router) {
			r.Get("/", listingHandler.List)
			r.Post("/", listingHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", listingHandler.Get)
				r.Patch("/", listingHandler.Update)
				r.Delete("/", listingHandler.Delete)
				r.Get("/history", listingHandler.History)
			})
		})

		// コレクション管理
		r.Route("/api/collections", func(r chi.Router) {
			r.Get("/", collectionHandler.List)
			r.Post("/", collectionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", collectionHandler.Get)
				r.Put("/", collectionHandler.Update)
				r.Delete("/", collectionHandler.Delete)

				r.Post("/items", collectionHandler.AddItems)
				r.Delete("/items", collectionHandler.RemoveItems)
				r.Delete("/items/{itemId}", collectionHandler.RemoveItem)
			})
		})

		// 公開パックの複製
		r.Post("/api/packs/{slug}/clone", collectionHandler.ClonePack)

		// CSVエクスポート
		r.Get("/api/export", listingHandler.Export)

		// トークン発行（Webアプリのセッション由来のベアラートークンで認証済み）
		r.Post("/api/auth/token", authHandler.IssueToken)
	})

	return r
}
