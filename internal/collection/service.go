// Package collection はリスティングをまとめるコレクションの管理と、
// 公開パックの共有・複製を提供する。
package collection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/quota"
	"github.com/grabbit/grabbit/internal/repository"
	"github.com/grabbit/grabbit/internal/security"
)

// slugMaxNameLength はスラグに使用するコレクション名部分の最大長。
const slugMaxNameLength = 40

// CreateInput はコレクション作成の入力を表す。
type CreateInput struct {
	Name        string
	Description string
	Color       string
	Icon        string
	IsPublic    bool
}

// UpdateInput はコレクションの部分更新の入力を表す。
// nilのフィールドは更新対象から除外される。
type UpdateInput struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	IsPublic    *bool
}

// Detail はコレクションと所属リスティングをまとめた詳細表示用の型。
type Detail struct {
	Collection *model.Collection
	Items      []*model.Listing
	ItemCount  int
	TotalValue int64
}

// Pack は公開コレクションの閲覧用ビュー。認証なしで参照される。
// 所有者のメールアドレス等は含めず、表示名のみを公開する。
type Pack struct {
	Collection *model.Collection
	Author     string
	Items      []*model.Listing
	ItemCount  int
	TotalValue int64
}

// Service はコレクション管理サービス。
type Service struct {
	collectionRepo repository.CollectionRepository
	listingRepo    repository.ListingRepository
	historyRepo    repository.PriceHistoryRepository
	userRepo       repository.UserRepository
	gate           *quota.Gate
	sanitizer      security.TextSanitizerService
	logger         *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	collectionRepo repository.CollectionRepository,
	listingRepo repository.ListingRepository,
	historyRepo repository.PriceHistoryRepository,
	userRepo repository.UserRepository,
	gate *quota.Gate,
	sanitizer security.TextSanitizerService,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		collectionRepo: collectionRepo,
		listingRepo:    listingRepo,
		historyRepo:    historyRepo,
		userRepo:       userRepo,
		gate:           gate,
		sanitizer:      sanitizer,
		logger:         logger,
	}
}

// Create は新規コレクションを作成する。
// 公開指定の場合はスラグを生成し、公開日時を記録する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Collection, error) {
	name := strings.TrimSpace(s.sanitizer.Sanitize(input.Name))
	if name == "" {
		return nil, model.NewInvalidPayloadError("nameは必須です")
	}

	color := input.Color
	if color == "" {
		color = model.DefaultCollectionColor
	}
	icon := input.Icon
	if icon == "" {
		icon = model.DefaultCollectionIcon
	}

	now := time.Now()
	c := &model.Collection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(s.sanitizer.Sanitize(input.Description)),
		Color:       color,
		Icon:        icon,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsPublic {
		c.Slug = generateSlug(name)
		c.PublishedAt = &now
	}

	if err := s.collectionRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List はユーザーのコレクション一覧を件数・合計金額の集計付きで返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.CollectionSummary, error) {
	return s.collectionRepo.ListByUser(ctx, userID)
}

// Get はコレクションの詳細を所属リスティング付きで返す。
// 他ユーザーの所有・不存在はどちらも未検出として扱う。
func (s *Service) Get(ctx context.Context, userID, collectionID string) (*Detail, error) {
	c, err := s.collectionRepo.FindByIDAndUser(ctx, collectionID, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}

	items, err := s.collectionRepo.ListItems(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	return &Detail{
		Collection: c,
		Items:      items,
		ItemCount:  len(items),
		TotalValue: sumPrices(items),
	}, nil
}

// Update はコレクションの可変フィールドを部分更新する。
// 初回公開時にスラグを生成し、非公開に戻すとスラグをクリアする。
// クリア後に再公開すると新しいスラグが発行される（旧共有リンクは無効のまま）。
func (s *Service) Update(ctx context.Context, userID, collectionID string, input UpdateInput) (*model.Collection, error) {
	c, err := s.collectionRepo.FindByIDAndUser(ctx, collectionID, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}

	if input.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*input.Name))
		if name == "" {
			return nil, model.NewInvalidPayloadError("nameを空にはできません")
		}
		c.Name = name
	}
	if input.Description != nil {
		c.Description = strings.TrimSpace(s.sanitizer.Sanitize(*input.Description))
	}
	if input.Color != nil {
		c.Color = *input.Color
	}
	if input.Icon != nil {
		c.Icon = *input.Icon
	}
	if input.IsPublic != nil {
		if *input.IsPublic && !c.IsPublic {
			if c.Slug == "" {
				c.Slug = generateSlug(c.Name)
			}
			if c.PublishedAt == nil {
				now := time.Now()
				c.PublishedAt = &now
			}
		}
		if !*input.IsPublic {
			c.Slug = ""
		}
		c.IsPublic = *input.IsPublic
	}
	c.UpdatedAt = time.Now()

	if err := s.collectionRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete はコレクションを削除する。所属リスティング自体は削除されない。
func (s *Service) Delete(ctx context.Context, userID, collectionID string) error {
	return s.collectionRepo.Delete(ctx, userID, collectionID)
}

// AddItems は自分のリスティングをコレクションに追加する。
// 他ユーザーの所有や削除済みのIDは無視され、実際に追加された件数を返す。
// 既に所属しているものは重複追加されない。
func (s *Service) AddItems(ctx context.Context, userID, collectionID string, listingIDs []string) (int, error) {
	c, err := s.collectionRepo.FindByIDAndUser(ctx, collectionID, userID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, model.NewCollectionNotFoundError(collectionID)
	}

	var valid []string
	for _, id := range listingIDs {
		listing, err := s.listingRepo.FindByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if listing == nil || listing.UserID != userID || listing.IsDeleted {
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return 0, model.NewInvalidPayloadError("追加できるリスティングがありません")
	}

	added, err := s.collectionRepo.AddItems(ctx, collectionID, valid)
	if err != nil {
		return 0, err
	}

	// 最初の追加でカバー画像を自動設定する
	if err := s.collectionRepo.SetCoverFromFirstItem(ctx, collectionID); err != nil {
		s.logger.Warn("カバー画像の自動設定に失敗しました",
			slog.String("collection_id", collectionID),
			slog.String("error", err.Error()),
		)
	}

	return added, nil
}

// RemoveItems はリスティングをコレクションから外す。
// 所属していないIDは無視され、実際に外された件数を返す。
func (s *Service) RemoveItems(ctx context.Context, userID, collectionID string, listingIDs []string) (int, error) {
	c, err := s.collectionRepo.FindByIDAndUser(ctx, collectionID, userID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, model.NewCollectionNotFoundError(collectionID)
	}

	return s.collectionRepo.RemoveItems(ctx, collectionID, listingIDs)
}

// RemoveItem はリスティングを1件コレクションから外す。
// 既に外れている場合も成功として扱う（冪等）。
func (s *Service) RemoveItem(ctx context.Context, userID, collectionID, listingID string) error {
	_, err := s.RemoveItems(ctx, userID, collectionID, []string{listingID})
	return err
}

// GetPack は公開コレクションをスラグで取得する。認証なしで呼ばれる。
// 閲覧数を加算し、所有者の表示名（メールアドレスのローカル部）を含める。
func (s *Service) GetPack(ctx context.Context, slug string) (*Pack, error) {
	c, err := s.collectionRepo.FindPublicBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.NewPackNotFoundError(slug)
	}

	if err := s.collectionRepo.IncrementViews(ctx, c.ID); err != nil {
		s.logger.Warn("閲覧数の加算に失敗しました",
			slog.String("collection_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	// 今回の閲覧分を含めて返す
	c.ViewsCount++

	items, err := s.collectionRepo.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	return &Pack{
		Collection: c,
		Author:     s.authorName(ctx, c.UserID),
		Items:      items,
		ItemCount:  len(items),
		TotalValue: sumPrices(items),
	}, nil
}

// ClonePack は公開パックを自分のコレクションとして複製する。
// パック内のリスティングは複製ユーザーの新規リスティングとしてコピーされ、
// 同一external idのものを既に保存している場合はそのまま流用される。
// 新規コピーが残り保存可能件数を超える場合はLIMIT_EXCEEDEDで拒否する。
func (s *Service) ClonePack(ctx context.Context, userID, slug string) (*Detail, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	source, err := s.collectionRepo.FindPublicBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, model.NewPackNotFoundError(slug)
	}

	items, err := s.collectionRepo.ListItems(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	// 既存のリスティングは流用し、持っていないものだけをコピーする。
	// 論理削除済みの同一商品は復活もコピーもしない（external idは占有されたまま）
	var existing []*model.Listing
	var toCopy []*model.Listing
	for _, item := range items {
		mine, err := s.listingRepo.FindByUserAndExternalID(ctx, userID, item.ExternalID)
		if err != nil {
			return nil, err
		}
		if mine != nil {
			if !mine.IsDeleted {
				existing = append(existing, mine)
			}
			continue
		}
		toCopy = append(toCopy, item)
	}

	activeCount, err := s.listingRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := model.LimitsForTier(user.SubscriptionTier)
	remaining := s.gate.Remaining(limits, activeCount)
	if remaining != model.UnlimitedListings && len(toCopy) > remaining {
		return nil, model.NewLimitExceededError(limits.MaxListings, activeCount)
	}

	now := time.Now()
	newCollection := &model.Collection{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          source.Name,
		Description:   source.Description,
		Color:         source.Color,
		Icon:          source.Icon,
		CoverImageURL: source.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.collectionRepo.Create(ctx, newCollection); err != nil {
		return nil, err
	}

	cloned := make([]*model.Listing, 0, len(items))
	cloned = append(cloned, existing...)
	for _, item := range toCopy {
		copied := s.copyListing(userID, item, now)
		if err := s.listingRepo.Create(ctx, copied); err != nil {
			return nil, err
		}
		s.recordInitialPrice(ctx, copied, now)
		cloned = append(cloned, copied)
	}

	ids := make([]string, len(cloned))
	for i, l := range cloned {
		ids[i] = l.ID
	}
	if _, err := s.collectionRepo.AddItems(ctx, newCollection.ID, ids); err != nil {
		return nil, err
	}

	if err := s.collectionRepo.IncrementClones(ctx, source.ID); err != nil {
		s.logger.Warn("複製数の加算に失敗しました",
			slog.String("collection_id", source.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("パックを複製しました",
		slog.String("slug", slug),
		slog.String("user_id", userID),
		slog.Int("copied", len(toCopy)),
		slog.Int("reused", len(existing)),
	)

	return &Detail{
		Collection: newCollection,
		Items:      cloned,
		ItemCount:  len(cloned),
		TotalValue: sumPrices(cloned),
	}, nil
}

// copyListing はパック内のリスティングを複製ユーザーの新規保存としてコピーする。
// 価格は複製時点の価格を初回価格として記録し直す。元の所有者のメモは引き継がない。
func (s *Service) copyListing(userID string, src *model.Listing, now time.Time) *model.Listing {
	price := src.CurrentPrice
	return &model.Listing{
		ID:            uuid.New().String(),
		UserID:        userID,
		ExternalID:    src.ExternalID,
		URL:           src.URL,
		Title:         src.Title,
		CurrentPrice:  price,
		OriginalPrice: &price,
		Year:          src.Year,
		Mileage:       src.Mileage,
		Make:          src.Make,
		Model:         src.Model,
		Location:      src.Location,
		ImageURL:      src.ImageURL,
		Platform:      src.Platform,
		SavedAt:       now,
		UpdatedAt:     now,
	}
}

// recordInitialPrice は複製したリスティングの初回価格観測を追記する。
func (s *Service) recordInitialPrice(ctx context.Context, l *model.Listing, now time.Time) {
	entry := &model.PriceHistoryEntry{
		ID:         uuid.New().String(),
		ListingID:  l.ID,
		Price:      l.CurrentPrice,
		Source:     model.PriceSourceManual,
		RecordedAt: now,
	}
	if err := s.historyRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("価格履歴の追記に失敗しました",
			slog.String("listing_id", l.ID),
			slog.String("error", err.Error()),
		)
	}
}

// authorName は所有者の表示名を返す。メールアドレスのローカル部を使用し、
// 取得できない場合はanonymousにフォールバックする。
func (s *Service) authorName(ctx context.Context, userID string) string {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil || user == nil || user.Email == "" {
		return "anonymous"
	}
	if local, _, found := strings.Cut(user.Email, "@"); found && local != "" {
		return local
	}
	return "anonymous"
}

// sumPrices はリスティングの現在価格の合計を返す。
func sumPrices(items []*model.Listing) int64 {
	var total int64
	for _, item := range items {
		total += item.CurrentPrice
	}
	return total
}

// generateSlug はコレクション名から公開用スラグを生成する。
// 名前を正規化したものにランダムなサフィックスを付けて一意性を確保する。
func generateSlug(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= slugMaxNameLength {
			break
		}
	}
	base := strings.Trim(b.String(), "-")

	raw := make([]byte, 3)
	var suffix string
	if _, err := rand.Read(raw); err == nil {
		suffix = hex.EncodeToString(raw)
	} else {
		suffix = strconv.FormatInt(time.Now().UnixNano()&0xffffff, 16)
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
