package pricecheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/repository"
)

// ListingChecker はリスティング1件の再チェック実行インターフェース。
type ListingChecker interface {
	// Check はリスティングのページを再取得し、価格が変動していれば更新する。
	Check(ctx context.Context, listing *model.Listing) error
}

// Scheduler は価格再チェックのスケジューリングと並列制御を行う。
// 一定間隔のティッカーで再チェック対象リスティングを取得し、
// semaphoreパターンで最大並列数を制御しながらチェックを実行する。
type Scheduler struct {
	listingRepo    repository.ListingRepository
	checker        ListingChecker
	metrics        CheckMetricsRecorder // nilの場合は記録しない
	logger         *slog.Logger
	batchSize      int
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	listingRepo repository.ListingRepository,
	checker ListingChecker,
	metrics CheckMetricsRecorder,
	logger *slog.Logger,
	batchSize int,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		listingRepo:    listingRepo,
		checker:        checker,
		metrics:        metrics,
		logger:         logger,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("価格再チェックスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, interval); err != nil {
		s.logger.Error("価格再チェックサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("価格再チェックスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, interval); err != nil {
				s.logger.Error("価格再チェックサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は再チェック対象リスティングを1回取得し、並列でチェックを実行する。
// 対象は直近のサイクル内に更新されていないProユーザーのリスティング。
// 個々のリスティングの失敗はログに記録し、残りの処理を継続する。
func (s *Scheduler) RunOnce(ctx context.Context, staleness time.Duration) error {
	start := time.Now()

	olderThan := time.Now().Add(-staleness)
	listings, err := s.listingRepo.ListDueForPriceCheck(ctx, olderThan, s.batchSize)
	if err != nil {
		return err
	}

	if len(listings) == 0 {
		s.logger.Info("再チェック対象のリスティングはありません")
		return nil
	}

	s.logger.Info("価格再チェックサイクルを開始します",
		slog.Int("listing_count", len(listings)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, listing := range listings {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(l *model.Listing) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.checker.Check(ctx, l); err != nil {
				s.logger.Warn("価格再チェックに失敗しました",
					slog.String("listing_id", l.ID),
					slog.String("url", l.URL),
					slog.String("error", err.Error()),
				)
				if s.metrics != nil {
					s.metrics.RecordPriceCheckFailure()
				}
				return
			}
			if s.metrics != nil {
				s.metrics.RecordPriceCheckSuccess()
			}
		}(listing)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("価格再チェックサイクルが完了しました",
		slog.Int("listing_count", len(listings)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
