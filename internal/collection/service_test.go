package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/quota"
	"github.com/grabbit/grabbit/internal/security"
)

// mockCollectionRepo はCollectionRepositoryのモック実装。
type mockCollectionRepo struct {
	byID      map[string]*model.Collection
	bySlug    map[string]*model.Collection
	summaries []*model.CollectionSummary
	items     map[string][]*model.Listing
	created   []*model.Collection
	updated   *model.Collection
	deleted   []string
	added     map[string][]string
	removed   map[string][]string
	coverSet  []string
	views     map[string]int
	clones    map[string]int
}

func newMockCollectionRepo() *mockCollectionRepo {
	return &mockCollectionRepo{
		byID:    map[string]*model.Collection{},
		bySlug:  map[string]*model.Collection{},
		items:   map[string][]*model.Listing{},
		added:   map[string][]string{},
		removed: map[string][]string{},
		views:   map[string]int{},
		clones:  map[string]int{},
	}
}

func (m *mockCollectionRepo) Create(_ context.Context, c *model.Collection) error {
	m.created = append(m.created, c)
	return nil
}

func (m *mockCollectionRepo) FindByIDAndUser(_ context.Context, id, userID string) (*model.Collection, error) {
	c := m.byID[id]
	if c == nil || c.UserID != userID {
		return nil, nil
	}
	return c, nil
}

func (m *mockCollectionRepo) FindPublicBySlug(_ context.Context, slug string) (*model.Collection, error) {
	c := m.bySlug[slug]
	if c == nil || !c.IsPublic {
		return nil, nil
	}
	return c, nil
}

func (m *mockCollectionRepo) ListByUser(_ context.Context, _ string) ([]*model.CollectionSummary, error) {
	return m.summaries, nil
}

func (m *mockCollectionRepo) Update(_ context.Context, c *model.Collection) error {
	m.updated = c
	return nil
}

func (m *mockCollectionRepo) Delete(_ context.Context, _, id string) error {
	if m.byID[id] == nil {
		return model.NewCollectionNotFoundError(id)
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCollectionRepo) AddItems(_ context.Context, collectionID string, listingIDs []string) (int, error) {
	m.added[collectionID] = append(m.added[collectionID], listingIDs...)
	return len(listingIDs), nil
}

func (m *mockCollectionRepo) RemoveItems(_ context.Context, collectionID string, listingIDs []string) (int, error) {
	m.removed[collectionID] = append(m.removed[collectionID], listingIDs...)
	return len(listingIDs), nil
}

func (m *mockCollectionRepo) ListItems(_ context.Context, collectionID string) ([]*model.Listing, error) {
	return m.items[collectionID], nil
}

func (m *mockCollectionRepo) SetCoverFromFirstItem(_ context.Context, collectionID string) error {
	m.coverSet = append(m.coverSet, collectionID)
	return nil
}

func (m *mockCollectionRepo) IncrementViews(_ context.Context, id string) error {
	m.views[id]++
	return nil
}

func (m *mockCollectionRepo) IncrementClones(_ context.Context, id string) error {
	m.clones[id]++
	return nil
}

// mockListingRepo はListingRepositoryのモック実装。
type mockListingRepo struct {
	byID        map[string]*model.Listing
	byExternal  map[string]*model.Listing
	activeCount int
	created     []*model.Listing
}

func (m *mockListingRepo) FindByID(_ context.Context, id string) (*model.Listing, error) {
	return m.byID[id], nil
}

func (m *mockListingRepo) FindByUserAndExternalID(_ context.Context, _, externalID string) (*model.Listing, error) {
	return m.byExternal[externalID], nil
}

func (m *mockListingRepo) MapByExternalIDs(_ context.Context, _ string, _ []string) (map[string]*model.Listing, error) {
	return nil, nil
}

func (m *mockListingRepo) CountActiveByUserID(_ context.Context, _ string) (int, error) {
	return m.activeCount, nil
}

func (m *mockListingRepo) Create(_ context.Context, listing *model.Listing) error {
	m.created = append(m.created, listing)
	return nil
}

func (m *mockListingRepo) Update(_ context.Context, _ *model.Listing) error {
	return nil
}

func (m *mockListingRepo) SoftDelete(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockListingRepo) ListByUser(_ context.Context, _ string, _ model.ListingQuery) ([]*model.Listing, int, error) {
	return nil, 0, nil
}

func (m *mockListingRepo) ListDueForPriceCheck(_ context.Context, _ time.Time, _ int) ([]*model.Listing, error) {
	return nil, nil
}

// mockUserRepo はUserRepositoryのモック実装。
type mockUserRepo struct {
	user *model.User
}

func (m *mockUserRepo) FindByID(_ context.Context, _ string) (*model.User, error) {
	return m.user, nil
}

func (m *mockUserRepo) FindByExtensionTokenHash(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) UpdateExtensionToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (m *mockUserRepo) UpdateLastSyncAt(_ context.Context, _ string, _ time.Time) error {
	return nil
}

// mockHistoryRepo はPriceHistoryRepositoryのモック実装。
type mockHistoryRepo struct {
	entries []*model.PriceHistoryEntry
}

func (m *mockHistoryRepo) Create(_ context.Context, entry *model.PriceHistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) ListByListingID(_ context.Context, _ string, _ int) ([]*model.PriceHistoryEntry, error) {
	return m.entries, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

func newTestService(collectionRepo *mockCollectionRepo, listingRepo *mockListingRepo, userRepo *mockUserRepo) *Service {
	return NewService(collectionRepo, listingRepo, &mockHistoryRepo{}, userRepo,
		quota.NewGate(), security.NewTextSanitizer(), testLogger())
}

func ownedCollection() *model.Collection {
	return &model.Collection{
		ID:     "c1",
		UserID: "user-1",
		Name:   "パーツ候補",
		Color:  model.DefaultCollectionColor,
		Icon:   model.DefaultCollectionIcon,
	}
}

// TestCreateCollection はコレクション作成時の既定値とスラグ生成を検証する。
func TestCreateCollection(t *testing.T) {
	t.Run("非公開の作成では既定値が適用される", func(t *testing.T) {
		repo := newMockCollectionRepo()
		service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

		c, err := service.Create(context.Background(), "user-1", CreateInput{Name: "  車候補  "})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if c.Name != "車候補" {
			t.Errorf("Name = %q, トリムされていません", c.Name)
		}
		if c.Color != model.DefaultCollectionColor || c.Icon != model.DefaultCollectionIcon {
			t.Errorf("color/icon = %s/%s, 既定値が適用されていません", c.Color, c.Icon)
		}
		if c.IsPublic || c.Slug != "" || c.PublishedAt != nil {
			t.Errorf("非公開作成なのに公開状態です: %+v", c)
		}
		if len(repo.created) != 1 {
			t.Errorf("created = %d件, want 1件", len(repo.created))
		}
	})

	t.Run("公開作成ではスラグと公開日時が設定される", func(t *testing.T) {
		repo := newMockCollectionRepo()
		service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

		c, err := service.Create(context.Background(), "user-1", CreateInput{
			Name:     "Winter Project Cars",
			IsPublic: true,
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(c.Slug, "winter-project-cars-") {
			t.Errorf("Slug = %q, 名前から生成されていません", c.Slug)
		}
		if c.PublishedAt == nil {
			t.Error("PublishedAt = nil, 公開日時が設定されていません")
		}
	})

	t.Run("名前のHTMLタグは除去される", func(t *testing.T) {
		repo := newMockCollectionRepo()
		service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

		c, err := service.Create(context.Background(), "user-1", CreateInput{
			Name: `<script>alert(1)</script>候補`,
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if strings.Contains(c.Name, "<script>") {
			t.Errorf("Name = %q, scriptタグが残っています", c.Name)
		}
	})

	t.Run("名前が空の場合は拒否される", func(t *testing.T) {
		service := newTestService(newMockCollectionRepo(), &mockListingRepo{}, &mockUserRepo{})

		_, err := service.Create(context.Background(), "user-1", CreateInput{Name: "   "})
		assertAPIErrorCode(t, err, model.ErrCodeInvalidPayload)
	})
}

// TestGetOwnership はGetの所有権判定と集計を検証する。
func TestGetOwnership(t *testing.T) {
	repo := newMockCollectionRepo()
	repo.byID["c1"] = ownedCollection()
	repo.byID["c2"] = &model.Collection{ID: "c2", UserID: "other-user"}
	repo.items["c1"] = []*model.Listing{
		{ID: "l1", CurrentPrice: 5000},
		{ID: "l2", CurrentPrice: 3000},
	}
	service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

	detail, err := service.Get(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", detail.ItemCount)
	}
	if detail.TotalValue != 8000 {
		t.Errorf("TotalValue = %d, want 8000", detail.TotalValue)
	}

	for _, id := range []string{"c2", "missing"} {
		_, err := service.Get(context.Background(), "user-1", id)
		assertAPIErrorCode(t, err, model.ErrCodeCollectionNotFound)
	}
}

// TestUpdatePublishLifecycle は公開・非公開の切り替えによる
// スラグの発行・クリア・再発行を検証する。
func TestUpdatePublishLifecycle(t *testing.T) {
	repo := newMockCollectionRepo()
	c := ownedCollection()
	repo.byID["c1"] = c
	service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

	// 初回公開でスラグと公開日時が発行される
	updated, err := service.Update(context.Background(), "user-1", "c1", UpdateInput{
		IsPublic: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Slug == "" || updated.PublishedAt == nil {
		t.Fatalf("公開後のslug/publishedAtが設定されていません: %+v", updated)
	}
	firstSlug := updated.Slug
	firstPublished := *updated.PublishedAt

	// 非公開に戻すとスラグはクリアされ、公開日時は残る
	updated, err = service.Update(context.Background(), "user-1", "c1", UpdateInput{
		IsPublic: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Slug != "" {
		t.Errorf("Slug = %q, 非公開後もクリアされていません", updated.Slug)
	}

	// 再公開では新しいスラグが発行される（旧リンクは復活しない）
	updated, err = service.Update(context.Background(), "user-1", "c1", UpdateInput{
		IsPublic: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Slug == "" || updated.Slug == firstSlug {
		t.Errorf("Slug = %q, 再公開で新しいスラグが発行されていません（旧: %s）", updated.Slug, firstSlug)
	}
	if updated.PublishedAt == nil || !updated.PublishedAt.Equal(firstPublished) {
		t.Errorf("PublishedAt = %v, 初回公開日時が保持されていません", updated.PublishedAt)
	}
}

// TestUpdatePartialFields はnilのフィールドが更新されないことを検証する。
func TestUpdatePartialFields(t *testing.T) {
	repo := newMockCollectionRepo()
	repo.byID["c1"] = ownedCollection()
	service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

	updated, err := service.Update(context.Background(), "user-1", "c1", UpdateInput{
		Description: strPtr("今年中に買う"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Description != "今年中に買う" {
		t.Errorf("Description = %q", updated.Description)
	}
	if updated.Name != "パーツ候補" {
		t.Errorf("Name = %s, 指定していないフィールドが変更されています", updated.Name)
	}
}

// TestAddItems は所属追加時の所有権フィルタとカバー画像の自動設定を検証する。
func TestAddItems(t *testing.T) {
	repo := newMockCollectionRepo()
	repo.byID["c1"] = ownedCollection()
	listingRepo := &mockListingRepo{byID: map[string]*model.Listing{
		"l1": {ID: "l1", UserID: "user-1"},
		"l2": {ID: "l2", UserID: "other-user"},
		"l3": {ID: "l3", UserID: "user-1", IsDeleted: true},
	}}
	service := newTestService(repo, listingRepo, &mockUserRepo{})

	t.Run("自分のアクティブなリスティングだけが追加される", func(t *testing.T) {
		added, err := service.AddItems(context.Background(), "user-1", "c1", []string{"l1", "l2", "l3", "missing"})
		if err != nil {
			t.Fatalf("AddItems() error = %v", err)
		}
		if added != 1 {
			t.Errorf("added = %d, want 1", added)
		}
		if got := repo.added["c1"]; len(got) != 1 || got[0] != "l1" {
			t.Errorf("added ids = %v, want [l1]", got)
		}
		if len(repo.coverSet) == 0 {
			t.Error("カバー画像の自動設定が呼ばれていません")
		}
	})

	t.Run("有効なリスティングがない場合は400相当", func(t *testing.T) {
		_, err := service.AddItems(context.Background(), "user-1", "c1", []string{"l2", "missing"})
		assertAPIErrorCode(t, err, model.ErrCodeInvalidPayload)
	})

	t.Run("他人のコレクションには追加できない", func(t *testing.T) {
		_, err := service.AddItems(context.Background(), "other-user-2", "c1", []string{"l1"})
		assertAPIErrorCode(t, err, model.ErrCodeCollectionNotFound)
	})
}

// TestRemoveItems は所属解除と冪等な単件解除を検証する。
func TestRemoveItems(t *testing.T) {
	repo := newMockCollectionRepo()
	repo.byID["c1"] = ownedCollection()
	service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

	removed, err := service.RemoveItems(context.Background(), "user-1", "c1", []string{"l1", "l2"})
	if err != nil {
		t.Fatalf("RemoveItems() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	// 所属していないリスティングの単件解除も成功として扱う
	if err := service.RemoveItem(context.Background(), "user-1", "c1", "not-a-member"); err != nil {
		t.Errorf("RemoveItem() error = %v", err)
	}
}

// TestGetPack は公開パックの閲覧と閲覧数の加算を検証する。
func TestGetPack(t *testing.T) {
	repo := newMockCollectionRepo()
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.bySlug["winter-cars-a1b2c3"] = &model.Collection{
		ID:          "c1",
		UserID:      "user-1",
		Name:        "Winter Cars",
		IsPublic:    true,
		Slug:        "winter-cars-a1b2c3",
		ViewsCount:  9,
		PublishedAt: &published,
	}
	repo.items["c1"] = []*model.Listing{
		{ID: "l1", CurrentPrice: 6500},
	}

	t.Run("公開パックは閲覧でき閲覧数が加算される", func(t *testing.T) {
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", Email: "hana@example.com"}}
		service := newTestService(repo, &mockListingRepo{}, userRepo)

		pack, err := service.GetPack(context.Background(), "winter-cars-a1b2c3")
		if err != nil {
			t.Fatalf("GetPack() error = %v", err)
		}
		if pack.Collection.ViewsCount != 10 {
			t.Errorf("ViewsCount = %d, want 10（今回の閲覧分を含む）", pack.Collection.ViewsCount)
		}
		if repo.views["c1"] != 1 {
			t.Errorf("views increment = %d, want 1", repo.views["c1"])
		}
		if pack.Author != "hana" {
			t.Errorf("Author = %q, want hana", pack.Author)
		}
		if pack.ItemCount != 1 || pack.TotalValue != 6500 {
			t.Errorf("集計 = %d件/%d, want 1件/6500", pack.ItemCount, pack.TotalValue)
		}
	})

	t.Run("所有者が取得できない場合はanonymous", func(t *testing.T) {
		service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})

		pack, err := service.GetPack(context.Background(), "winter-cars-a1b2c3")
		if err != nil {
			t.Fatalf("GetPack() error = %v", err)
		}
		if pack.Author != "anonymous" {
			t.Errorf("Author = %q, want anonymous", pack.Author)
		}
	})

	t.Run("未知のスラグは未検出", func(t *testing.T) {
		service := newTestService(repo, &mockListingRepo{}, &mockUserRepo{})
		_, err := service.GetPack(context.Background(), "missing-slug")
		assertAPIErrorCode(t, err, model.ErrCodePackNotFound)
	})
}

// TestClonePack は公開パックの複製を検証する。
func TestClonePack(t *testing.T) {
	sourceItems := []*model.Listing{
		{ID: "src-1", UserID: "owner", ExternalID: "ext-1", Title: "Mazda Demio", CurrentPrice: 6500, Platform: model.PlatformTrademe},
		{ID: "src-2", UserID: "owner", ExternalID: "ext-2", Title: "Toyota Vitz", CurrentPrice: 8000, Platform: model.PlatformTrademe},
	}

	newPackRepo := func() *mockCollectionRepo {
		repo := newMockCollectionRepo()
		repo.bySlug["cars-a1b2c3"] = &model.Collection{
			ID:       "src-col",
			UserID:   "owner",
			Name:     "Cars",
			IsPublic: true,
			Slug:     "cars-a1b2c3",
		}
		repo.items["src-col"] = sourceItems
		return repo
	}

	t.Run("全リスティングがコピーされ複製数が加算される", func(t *testing.T) {
		repo := newPackRepo()
		listingRepo := &mockListingRepo{byID: map[string]*model.Listing{}, byExternal: map[string]*model.Listing{}}
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", SubscriptionTier: model.TierPro}}
		service := newTestService(repo, listingRepo, userRepo)

		detail, err := service.ClonePack(context.Background(), "user-1", "cars-a1b2c3")
		if err != nil {
			t.Fatalf("ClonePack() error = %v", err)
		}

		if detail.ItemCount != 2 {
			t.Errorf("ItemCount = %d, want 2", detail.ItemCount)
		}
		if len(listingRepo.created) != 2 {
			t.Fatalf("コピーされたリスティング = %d件, want 2件", len(listingRepo.created))
		}
		copied := listingRepo.created[0]
		if copied.UserID != "user-1" || copied.ID == "src-1" {
			t.Errorf("コピーが複製ユーザーの新規リスティングになっていません: %+v", copied)
		}
		if copied.OriginalPrice == nil || *copied.OriginalPrice != copied.CurrentPrice {
			t.Errorf("コピーの初回価格が複製時点の価格になっていません: %+v", copied)
		}
		if detail.Collection.IsPublic || detail.Collection.Slug != "" {
			t.Errorf("複製先が公開状態になっています: %+v", detail.Collection)
		}
		if repo.clones["src-col"] != 1 {
			t.Errorf("clones increment = %d, want 1", repo.clones["src-col"])
		}
	})

	t.Run("既に保存済みのリスティングは流用される", func(t *testing.T) {
		repo := newPackRepo()
		mine := &model.Listing{ID: "mine-1", UserID: "user-1", ExternalID: "ext-1", CurrentPrice: 6000}
		listingRepo := &mockListingRepo{
			byID:       map[string]*model.Listing{"mine-1": mine},
			byExternal: map[string]*model.Listing{"ext-1": mine},
		}
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", SubscriptionTier: model.TierPro}}
		service := newTestService(repo, listingRepo, userRepo)

		detail, err := service.ClonePack(context.Background(), "user-1", "cars-a1b2c3")
		if err != nil {
			t.Fatalf("ClonePack() error = %v", err)
		}
		if len(listingRepo.created) != 1 {
			t.Errorf("コピー = %d件, want 1件（ext-1は流用）", len(listingRepo.created))
		}
		if detail.ItemCount != 2 {
			t.Errorf("ItemCount = %d, want 2", detail.ItemCount)
		}
	})

	t.Run("論理削除済みの同一商品は復活もコピーもされない", func(t *testing.T) {
		repo := newPackRepo()
		deleted := &model.Listing{ID: "gone-1", UserID: "user-1", ExternalID: "ext-1", IsDeleted: true}
		listingRepo := &mockListingRepo{
			byID:       map[string]*model.Listing{"gone-1": deleted},
			byExternal: map[string]*model.Listing{"ext-1": deleted},
		}
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", SubscriptionTier: model.TierPro}}
		service := newTestService(repo, listingRepo, userRepo)

		detail, err := service.ClonePack(context.Background(), "user-1", "cars-a1b2c3")
		if err != nil {
			t.Fatalf("ClonePack() error = %v", err)
		}
		if len(listingRepo.created) != 1 || listingRepo.created[0].ExternalID != "ext-2" {
			t.Errorf("コピー = %+v, want ext-2のみ", listingRepo.created)
		}
		if detail.ItemCount != 1 {
			t.Errorf("ItemCount = %d, want 1", detail.ItemCount)
		}
	})

	t.Run("残り保存可能数を超える複製は拒否される", func(t *testing.T) {
		repo := newPackRepo()
		listingRepo := &mockListingRepo{
			byID:        map[string]*model.Listing{},
			byExternal:  map[string]*model.Listing{},
			activeCount: 24, // freeの上限25まで残り1、コピーは2件必要
		}
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", SubscriptionTier: model.TierFree}}
		service := newTestService(repo, listingRepo, userRepo)

		_, err := service.ClonePack(context.Background(), "user-1", "cars-a1b2c3")
		assertAPIErrorCode(t, err, model.ErrCodeLimitExceeded)

		if len(listingRepo.created) != 0 || len(repo.created) != 0 {
			t.Error("拒否後にコピーまたはコレクションが作成されています")
		}
	})

	t.Run("非公開のスラグは複製できない", func(t *testing.T) {
		repo := newPackRepo()
		repo.bySlug["cars-a1b2c3"].IsPublic = false
		userRepo := &mockUserRepo{user: &model.User{ID: "user-1", SubscriptionTier: model.TierPro}}
		service := newTestService(repo, &mockListingRepo{}, userRepo)

		_, err := service.ClonePack(context.Background(), "user-1", "cars-a1b2c3")
		assertAPIErrorCode(t, err, model.ErrCodePackNotFound)
	})
}

// TestGenerateSlug はスラグ生成の正規化規則を検証する。
func TestGenerateSlug(t *testing.T) {
	slug := generateSlug("Winter Project Cars!")
	if !strings.HasPrefix(slug, "winter-project-cars-") {
		t.Errorf("slug = %q, 正規化されていません", slug)
	}

	// ASCII英数字を含まない名前はサフィックスのみになる
	slug = generateSlug("車のパーツ")
	if slug == "" || strings.Contains(slug, "-") {
		t.Errorf("slug = %q, サフィックスのみになっていません", slug)
	}

	// 同名でも衝突しない
	if generateSlug("same name") == generateSlug("same name") {
		t.Error("同名のスラグが衝突しています")
	}
}

// assertAPIErrorCode はエラーが指定コードのAPIErrorであることを検証する。
func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("エラーが返されていません")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorではありません: %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}
