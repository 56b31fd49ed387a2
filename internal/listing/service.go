// Package listing は保存済みリスティングの閲覧・編集・削除・
// 価格履歴閲覧・エクスポートを提供する。
package listing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/quota"
	"github.com/grabbit/grabbit/internal/repository"
	"github.com/grabbit/grabbit/internal/security"
)

// priceHistoryLimit は1リスティングあたりの履歴取得上限。
const priceHistoryLimit = 100

// Page はページネーション付きのリスティング一覧を表す。
type Page struct {
	Listings []*model.Listing `json:"listings"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// UpdateInput はリスティングの部分更新の入力を表す。
// nilのフィールドは更新対象から除外される。
// external_id・original_price・saved_atは更新できない。
type UpdateInput struct {
	Title        *string
	CurrentPrice *int64
	Year         *int
	Mileage      *int
	Make         *string
	Model        *string
	Location     *string
	Notes        *string
	IsArchived   *bool
}

// CreateInput は単体リスティング作成の入力を表す。
// ExternalIDが空の場合はURLから導出する。
type CreateInput struct {
	ExternalID string
	URL        string
	Title      string
	Price      int64
	Year       *int
	Mileage    *int
	Make       string
	Model      string
	Location   string
	ImageURL   string
	Notes      string
}

// Service はリスティング管理サービス。
type Service struct {
	userRepo    repository.UserRepository
	listingRepo repository.ListingRepository
	historyRepo repository.PriceHistoryRepository
	gate        *quota.Gate
	sanitizer   security.TextSanitizerService
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	historyRepo repository.PriceHistoryRepository,
	gate *quota.Gate,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:    userRepo,
		listingRepo: listingRepo,
		historyRepo: historyRepo,
		gate:        gate,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Create は単体のリスティングを保存する。
// 同一external idの再保存は重複作成ではなく既存行の更新になる。
// 新規作成時に上限に達している場合はLIMIT_EXCEEDEDを返す
// （バッチ同期のスキップ扱いと異なり、単体作成は明示的に拒否する）。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Listing, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	externalID := input.ExternalID
	if externalID == "" {
		externalID = externalIDFromURL(input.URL)
	}

	existing, err := s.listingRepo.FindByUserAndExternalID(ctx, userID, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// 再保存: 既存行を更新する（重複は作らない）。
		// ユーザーが書いたメモは保存元のデータでは上書きしない。
		// 再取得で空だったフィールドも既存の値を保持する
		price := input.Price
		return s.Update(ctx, userID, existing.ID, UpdateInput{
			Title:        &input.Title,
			CurrentPrice: &price,
			Year:         input.Year,
			Mileage:      input.Mileage,
			Make:         optionalString(input.Make),
			Model:        optionalString(input.Model),
			Location:     optionalString(input.Location),
		})
	}

	activeCount, err := s.listingRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := model.LimitsForTier(user.SubscriptionTier)
	if !s.gate.CanCreate(limits, activeCount, 0) {
		return nil, model.NewLimitExceededError(limits.MaxListings, activeCount)
	}

	now := time.Now()
	price := input.Price
	listing := &model.Listing{
		ID:            uuid.New().String(),
		UserID:        userID,
		ExternalID:    externalID,
		URL:           input.URL,
		Title:         input.Title,
		CurrentPrice:  price,
		OriginalPrice: &price,
		PriceDropped:  false,
		Year:          input.Year,
		Mileage:       input.Mileage,
		Make:          input.Make,
		Model:         input.Model,
		Location:      input.Location,
		ImageURL:      input.ImageURL,
		Platform:      model.PlatformFromURL(input.URL),
		Notes:         s.sanitizer.Sanitize(input.Notes),
		SavedAt:       now,
		UpdatedAt:     now,
	}
	if err := s.listingRepo.Create(ctx, listing); err != nil {
		return nil, err
	}

	entry := &model.PriceHistoryEntry{
		ID:         uuid.New().String(),
		ListingID:  listing.ID,
		Price:      price,
		Source:     model.PriceSourceManual,
		RecordedAt: now,
	}
	if err := s.historyRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("価格履歴の追記に失敗しました",
			slog.String("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}

	return listing, nil
}

// optionalString は空文字列を「指定なし」としてnilに変換する。
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// externalIDFromURL は保存元URLから安定したexternal idを導出する。
func externalIDFromURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16])
}

// List はユーザーのアクティブなリスティング一覧を返す。
func (s *Service) List(ctx context.Context, userID string, query model.ListingQuery) (*Page, error) {
	listings, total, err := s.listingRepo.ListByUser(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 {
		limit = 20
	}

	return &Page{
		Listings: listings,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}, nil
}

// Get は指定IDのリスティングを返す。
// 他ユーザーの所有・論理削除済み・不存在はすべて未検出として扱う。
func (s *Service) Get(ctx context.Context, userID, listingID string) (*model.Listing, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil || listing.UserID != userID || listing.IsDeleted {
		return nil, model.NewListingNotFoundError(listingID)
	}
	return listing, nil
}

// Update はリスティングの可変フィールドを部分更新する。
// 手動の価格変更は価格履歴にmanualとして記録され、
// 値下がりフラグを初回価格基準で再計算する。
// メモはHTMLタグを除去してから保存する。
func (s *Service) Update(ctx context.Context, userID, listingID string, input UpdateInput) (*model.Listing, error) {
	listing, err := s.Get(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}

	priceChanged := false
	if input.Title != nil {
		listing.Title = *input.Title
	}
	if input.CurrentPrice != nil && *input.CurrentPrice != listing.CurrentPrice {
		baseline := listing.CurrentPrice
		if listing.OriginalPrice != nil {
			baseline = *listing.OriginalPrice
		}
		listing.CurrentPrice = *input.CurrentPrice
		listing.PriceDropped = *input.CurrentPrice < baseline
		priceChanged = true
	}
	if input.Year != nil {
		listing.Year = input.Year
	}
	if input.Mileage != nil {
		listing.Mileage = input.Mileage
	}
	if input.Make != nil {
		listing.Make = *input.Make
	}
	if input.Model != nil {
		listing.Model = *input.Model
	}
	if input.Location != nil {
		listing.Location = *input.Location
	}
	if input.Notes != nil {
		listing.Notes = s.sanitizer.Sanitize(*input.Notes)
	}
	if input.IsArchived != nil {
		listing.IsArchived = *input.IsArchived
	}
	listing.UpdatedAt = time.Now()

	if err := s.listingRepo.Update(ctx, listing); err != nil {
		return nil, err
	}

	if priceChanged {
		entry := &model.PriceHistoryEntry{
			ID:         uuid.New().String(),
			ListingID:  listing.ID,
			Price:      listing.CurrentPrice,
			Source:     model.PriceSourceManual,
			RecordedAt: time.Now(),
		}
		if err := s.historyRepo.Create(ctx, entry); err != nil {
			s.logger.Warn("価格履歴の追記に失敗しました",
				slog.String("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return listing, nil
}

// Delete はリスティングを論理削除する。
// 削除された行は一覧と件数カウントから除外されるが、行自体は保持される。
func (s *Service) Delete(ctx context.Context, userID, listingID string) error {
	// 所有権の確認を兼ねる
	if _, err := s.Get(ctx, userID, listingID); err != nil {
		return err
	}
	return s.listingRepo.SoftDelete(ctx, userID, listingID)
}

// PriceHistory はリスティングの価格履歴を記録日時の降順で返す。
// 価格履歴の閲覧はProプラン限定の機能。
func (s *Service) PriceHistory(ctx context.Context, userID, listingID string) ([]*model.PriceHistoryEntry, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if !model.LimitsForTier(user.SubscriptionTier).CanViewPriceHistory {
		return nil, model.NewUpgradeRequiredError("価格履歴の閲覧")
	}

	if _, err := s.Get(ctx, userID, listingID); err != nil {
		return nil, err
	}

	return s.historyRepo.ListByListingID(ctx, listingID, priceHistoryLimit)
}
