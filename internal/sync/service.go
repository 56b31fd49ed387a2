// Package sync は拡張機能からのバッチ同期を処理する。
// バッチ内の各アイテムをリスティングの作成・更新・スキップに振り分け、
// 価格変動の検出と価格履歴の追記を行う。
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/quota"
	"github.com/grabbit/grabbit/internal/repository"
)

// SyncModeMerge は唯一サポートされる同期モード。
// 受信データと既存データをマージし、削除は行わない。
const SyncModeMerge = "merge"

// BatchRequest はバッチ同期のリクエストを表す。
type BatchRequest struct {
	SyncMode string
	Listings []model.IncomingListing
}

// PriceChange は同期によって検出された価格変動を表す。
type PriceChange struct {
	ListingID string `json:"listingId"`
	OldPrice  int64  `json:"oldPrice"`
	NewPrice  int64  `json:"newPrice"`
}

// Report はバッチ同期の結果を表す。
// Synced = Created + Updated、Synced + Skipped = 入力件数が常に成り立つ。
type Report struct {
	Success      bool          `json:"success"`
	Synced       int           `json:"synced"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	PriceChanges []PriceChange `json:"priceChanges"`
}

// MetricsRecorder は同期結果のメトリクス記録インターフェース。
type MetricsRecorder interface {
	// RecordSyncItem はアイテム1件の処理結果（created/updated/skipped）を記録する。
	RecordSyncItem(outcome string)
	// RecordPriceDrop は値下がり検出を記録する。
	RecordPriceDrop()
}

// Service はバッチ同期オーケストレーター。
// バッチ開始時に既存状態のスナップショットを1回だけ取得し、
// アイテムを入力順に逐次処理する。アイテム間の失敗は伝播しない。
type Service struct {
	userRepo    repository.UserRepository
	listingRepo repository.ListingRepository
	historyRepo repository.PriceHistoryRepository
	syncLogRepo repository.SyncLogRepository
	gate        *quota.Gate
	metrics     MetricsRecorder // nilの場合は記録しない
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	historyRepo repository.PriceHistoryRepository,
	syncLogRepo repository.SyncLogRepository,
	gate *quota.Gate,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:    userRepo,
		listingRepo: listingRepo,
		historyRepo: historyRepo,
		syncLogRepo: syncLogRepo,
		gate:        gate,
		metrics:     metrics,
		logger:      logger,
	}
}

// SyncBatch はユーザーのバッチ同期を実行する。
//
// 各アイテムは (user_id, external_id) で既存リスティングと突き合わせ、
// 既存があれば更新、なければ上限判定を経て作成する。
// 上限拒否されたアイテムと書き込みに失敗したアイテムはスキップされ、
// バッチの残りは継続する。バッチ全体が失敗するのは
// リクエスト不正・ユーザー不在・スナップショット取得失敗のみ。
func (s *Service) SyncBatch(ctx context.Context, userID string, req BatchRequest) (*Report, error) {
	if req.Listings == nil {
		return nil, model.NewInvalidPayloadError("listingsフィールドは必須です")
	}

	// syncModeの省略はmergeとみなす。merge以外は削除セマンティクスが
	// 未定義のため明示的に拒否する
	if req.SyncMode != "" && req.SyncMode != SyncModeMerge {
		return nil, model.NewInvalidSyncModeError(req.SyncMode)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	limits := model.LimitsForTier(user.SubscriptionTier)

	// バッチ開始時点のスナップショット。上限判定はこの件数に
	// バッチ内の作成数を加算して行い、バッチ途中で再カウントしない
	activeCount, err := s.listingRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	externalIDs := make([]string, 0, len(req.Listings))
	for _, item := range req.Listings {
		if item.ExternalID != "" {
			externalIDs = append(externalIDs, item.ExternalID)
		}
	}
	existingByExternalID, err := s.listingRepo.MapByExternalIDs(ctx, userID, externalIDs)
	if err != nil {
		return nil, err
	}

	syncLog := &model.SyncLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		StartedAt: time.Now(),
	}
	if err := s.syncLogRepo.Create(ctx, syncLog); err != nil {
		// 監査ログの作成失敗は同期自体を妨げない
		s.logger.Warn("同期ログの作成に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		syncLog = nil
	}

	report := &Report{PriceChanges: []PriceChange{}}
	failed := 0

	for _, item := range req.Listings {
		if item.ExternalID == "" {
			s.logger.Warn("externalIdが空のアイテムをスキップしました",
				slog.String("user_id", userID),
			)
			s.recordItem(report, "skipped")
			failed++
			continue
		}

		if existing, ok := existingByExternalID[item.ExternalID]; ok {
			s.reconcileUpdate(ctx, existing, item, report, &failed)
		} else {
			s.reconcileCreate(ctx, userID, item, limits, activeCount, report, &failed)
		}
	}

	if syncLog != nil {
		now := time.Now()
		if err := s.syncLogRepo.Finalize(ctx, syncLog.ID, report.Synced, failed, now, ""); err != nil {
			s.logger.Warn("同期ログの確定に失敗しました",
				slog.String("sync_log_id", syncLog.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.userRepo.UpdateLastSyncAt(ctx, userID, time.Now()); err != nil {
		s.logger.Warn("最終同期日時の更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	report.Success = true
	s.logger.Info("バッチ同期が完了しました",
		slog.String("user_id", userID),
		slog.Int("synced", report.Synced),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("price_changes", len(report.PriceChanges)),
	)
	return report, nil
}

// reconcileUpdate は既存リスティングを受信データで更新する。
// original_priceとsaved_atは初回保存時の値を保持する。
func (s *Service) reconcileUpdate(ctx context.Context, existing *model.Listing, item model.IncomingListing, report *Report, failed *int) {
	priceChanged := existing.CurrentPrice != item.Price

	// 値下がり判定の基準は初回保存時の価格。
	// 履歴データ等でoriginal_priceが欠落している行は現在価格を基準にする
	baseline := existing.CurrentPrice
	if existing.OriginalPrice != nil {
		baseline = *existing.OriginalPrice
	}

	updated := *existing
	updated.URL = item.URL
	updated.Title = item.Title
	updated.CurrentPrice = item.Price
	updated.PriceDropped = item.Price < baseline
	updated.Year = item.Year
	updated.Mileage = item.Mileage
	updated.Make = item.Make
	updated.Model = item.Model
	updated.Location = item.Location
	updated.ImageURL = item.ImageURL
	updated.UpdatedAt = time.Now()

	if err := s.listingRepo.Update(ctx, &updated); err != nil {
		s.logger.Warn("リスティングの更新に失敗したためスキップしました",
			slog.String("listing_id", existing.ID),
			slog.String("external_id", item.ExternalID),
			slog.String("error", err.Error()),
		)
		s.recordItem(report, "skipped")
		*failed++
		return
	}

	if priceChanged {
		s.appendHistory(ctx, existing.ID, item.Price, model.PriceSourceSync)
		report.PriceChanges = append(report.PriceChanges, PriceChange{
			ListingID: existing.ID,
			OldPrice:  existing.CurrentPrice,
			NewPrice:  item.Price,
		})
		if updated.PriceDropped && s.metrics != nil {
			s.metrics.RecordPriceDrop()
		}
	}

	report.Updated++
	s.recordItem(report, "updated")
}

// reconcileCreate は上限判定を経て新規リスティングを作成する。
func (s *Service) reconcileCreate(ctx context.Context, userID string, item model.IncomingListing, limits model.SubscriptionLimits, activeCount int, report *Report, failed *int) {
	if !s.gate.CanCreate(limits, activeCount, report.Created) {
		s.logger.Info("リスティング数上限のためアイテムをスキップしました",
			slog.String("user_id", userID),
			slog.String("external_id", item.ExternalID),
			slog.Int("active_count", activeCount),
			slog.Int("created_in_batch", report.Created),
		)
		s.recordItem(report, "skipped")
		return
	}

	now := time.Now()
	savedAt := now
	if item.SavedAt != nil {
		savedAt = *item.SavedAt
	}
	originalPrice := item.Price
	listing := &model.Listing{
		ID:            uuid.New().String(),
		UserID:        userID,
		ExternalID:    item.ExternalID,
		URL:           item.URL,
		Title:         item.Title,
		CurrentPrice:  item.Price,
		OriginalPrice: &originalPrice,
		PriceDropped:  false,
		Year:          item.Year,
		Mileage:       item.Mileage,
		Make:          item.Make,
		Model:         item.Model,
		Location:      item.Location,
		ImageURL:      item.ImageURL,
		Platform:      model.PlatformFromURL(item.URL),
		SavedAt:       savedAt,
		UpdatedAt:     now,
	}

	if err := s.listingRepo.Create(ctx, listing); err != nil {
		s.logger.Warn("リスティングの作成に失敗したためスキップしました",
			slog.String("user_id", userID),
			slog.String("external_id", item.ExternalID),
			slog.String("error", err.Error()),
		)
		s.recordItem(report, "skipped")
		*failed++
		return
	}

	s.appendHistory(ctx, listing.ID, item.Price, model.PriceSourceSync)

	report.Created++
	s.recordItem(report, "created")
}

// appendHistory は価格観測を追記する。失敗してもアイテムの処理は成功扱いとする。
func (s *Service) appendHistory(ctx context.Context, listingID string, price int64, source model.PriceSource) {
	entry := &model.PriceHistoryEntry{
		ID:         uuid.New().String(),
		ListingID:  listingID,
		Price:      price,
		Source:     source,
		RecordedAt: time.Now(),
	}
	if err := s.historyRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("価格履歴の追記に失敗しました",
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()),
		)
	}
}

// recordItem は処理結果カウンタとメトリクスを更新する。
// created/updatedの場合はSyncedも加算する。
func (s *Service) recordItem(report *Report, outcome string) {
	switch outcome {
	case "created", "updated":
		report.Synced++
	case "skipped":
		report.Skipped++
	}
	if s.metrics != nil {
		s.metrics.RecordSyncItem(outcome)
	}
}
