// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/grabbit/grabbit/internal/auth"
	"github.com/grabbit/grabbit/internal/collection"
	"github.com/grabbit/grabbit/internal/config"
	"github.com/grabbit/grabbit/internal/database"
	"github.com/grabbit/grabbit/internal/extractor"
	"github.com/grabbit/grabbit/internal/handler"
	"github.com/grabbit/grabbit/internal/listing"
	"github.com/grabbit/grabbit/internal/logger"
	"github.com/grabbit/grabbit/internal/metrics"
	"github.com/grabbit/grabbit/internal/middleware"
	"github.com/grabbit/grabbit/internal/quota"
	"github.com/grabbit/grabbit/internal/repository"
	"github.com/grabbit/grabbit/internal/security"
	syncsvc "github.com/grabbit/grabbit/internal/sync"
	"github.com/grabbit/grabbit/internal/worker/pricecheck"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続（拡張機能トークン受け渡し用）
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)
	historyRepo := repository.NewPostgresPriceHistoryRepo(db)
	syncLogRepo := repository.NewPostgresSyncLogRepo(db)
	collectionRepo := repository.NewPostgresCollectionRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()

	llmClient := extractor.NewLLMClient(
		&http.Client{Timeout: cfg.LLMTimeout},
		slog.Default(),
		extractor.LLMClientConfig{
			BaseURL:    cfg.AIRouterURL,
			MaxTokens:  cfg.LLMMaxTokens,
			HTMLBudget: cfg.ParseHTMLBudget,
		},
	)
	productExtractor := extractor.New(llmClient, slog.Default())

	gate := quota.NewGate()
	syncService := syncsvc.NewService(
		userRepo, listingRepo, historyRepo, syncLogRepo,
		gate, collector, slog.Default(),
	)

	listingService := listing.NewService(
		userRepo, listingRepo, historyRepo, gate, sanitizer, slog.Default(),
	)

	collectionService := collection.NewService(
		collectionRepo, listingRepo, historyRepo, userRepo,
		gate, sanitizer, slog.Default(),
	)

	stateStore := auth.NewRedisStateStore(redisClient)
	authService := auth.NewService(userRepo, stateStore, cfg.TokenStateTTL, slog.Default())

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SyncRate = rate.Limit(float64(cfg.RateLimitSync) / 60.0)
	rateLimiterCfg.SyncBurst = cfg.RateLimitSync
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		SyncService:       syncService,
		Extractor:         productExtractor,
		ListingService:    listingService,
		CollectionService: collectionService,
		AuthService:       authService,

		MetricsCollector: collector,
		MetricsGatherer:  registry,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は価格再チェックワーカーモードで起動する。
// DB接続を開き、再チェックスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	listingRepo := repository.NewPostgresListingRepo(db)
	historyRepo := repository.NewPostgresPriceHistoryRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. チェッカーの初期化
	// ワーカーの再取得ではLLMフォールバックを使わない（ヒューリスティクスのみ）
	ssrfGuard := security.NewSSRFGuard()
	safeClient := ssrfGuard.NewSafeClient(cfg.PriceCheckTimeout, cfg.PriceCheckMaxSize)
	heuristics := extractor.New(nil, slog.Default())

	checker := pricecheck.NewChecker(
		listingRepo, historyRepo, heuristics, ssrfGuard,
		safeClient, cfg.PriceCheckMaxSize, collector, slog.Default(),
	)

	// 5. スケジューラの起動
	scheduler := pricecheck.NewScheduler(
		listingRepo, checker, collector, slog.Default(),
		cfg.PriceCheckBatch, 5,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("check_interval", cfg.PriceCheckInterval),
		slog.Int("batch_size", cfg.PriceCheckBatch),
	)

	// 再チェックスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.PriceCheckInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
