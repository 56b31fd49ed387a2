package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/grabbit/grabbit/internal/model"
)

// mockUserRepo はUserRepositoryのモック実装。
type mockUserRepo struct {
	user           *model.User
	userByHash     map[string]*model.User
	storedHash     string
	storedHashTime time.Time
}

func (m *mockUserRepo) FindByID(_ context.Context, _ string) (*model.User, error) {
	return m.user, nil
}

func (m *mockUserRepo) FindByExtensionTokenHash(_ context.Context, hash string) (*model.User, error) {
	return m.userByHash[hash], nil
}

func (m *mockUserRepo) UpdateExtensionToken(_ context.Context, _ string, tokenHash string, createdAt time.Time) error {
	m.storedHash = tokenHash
	m.storedHashTime = createdAt
	return nil
}

func (m *mockUserRepo) UpdateLastSyncAt(_ context.Context, _ string, _ time.Time) error {
	return nil
}

// memoryStateStore はテスト用のインメモリStateStore実装。
type memoryStateStore struct {
	grants map[string]TokenGrant
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{grants: make(map[string]TokenGrant)}
}

func (m *memoryStateStore) Put(_ context.Context, state string, grant TokenGrant, _ time.Duration) error {
	m.grants[state] = grant
	return nil
}

func (m *memoryStateStore) TakeOnce(_ context.Context, state string) (*TokenGrant, error) {
	grant, ok := m.grants[state]
	if !ok {
		return nil, nil
	}
	delete(m.grants, state)
	return &grant, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const testState = "0123456789abcdef0123456789abcdef"

// TestIssueAndClaimToken はトークンの発行から一度だけの受け取りまでの
// フローを検証する。
func TestIssueAndClaimToken(t *testing.T) {
	userRepo := &mockUserRepo{user: &model.User{ID: "user-1"}}
	states := newMemoryStateStore()
	service := NewService(userRepo, states, 5*time.Minute, testLogger())

	if err := service.IssueToken(context.Background(), "user-1", testState); err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	// データベースには平文ではなくハッシュのみが保存される
	if userRepo.storedHash == "" {
		t.Fatal("トークンハッシュが保存されていません")
	}
	if len(userRepo.storedHash) != 64 {
		t.Errorf("ハッシュ長 = %d, want 64（SHA-256のhex）", len(userRepo.storedHash))
	}

	grant, err := service.ClaimToken(context.Background(), testState)
	if err != nil {
		t.Fatalf("ClaimToken() error = %v", err)
	}
	if grant == nil {
		t.Fatal("トークンが受け取れません")
	}
	if grant.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", grant.UserID)
	}
	if len(grant.Token) != 64 {
		t.Errorf("トークン長 = %d, want 64（32バイトのhex）", len(grant.Token))
	}
	if HashToken(grant.Token) != userRepo.storedHash {
		t.Error("受け取ったトークンのハッシュが保存値と一致しません")
	}

	// 2回目の受け取りは空を返す（ワンタイム）
	second, err := service.ClaimToken(context.Background(), testState)
	if err != nil {
		t.Fatalf("ClaimToken() 2回目 error = %v", err)
	}
	if second != nil {
		t.Error("トークンが2回受け取れてしまいます")
	}
}

// TestIssueTokenInvalidState はstateの形式検証を検証する。
func TestIssueTokenInvalidState(t *testing.T) {
	userRepo := &mockUserRepo{user: &model.User{ID: "user-1"}}
	service := NewService(userRepo, newMemoryStateStore(), 5*time.Minute, testLogger())

	for _, state := range []string{"", "short", string(make([]byte, 200))} {
		err := service.IssueToken(context.Background(), "user-1", state)
		if err == nil {
			t.Errorf("state=%q でエラーが返されていません", state)
			continue
		}
		apiErr, ok := err.(*model.APIError)
		if !ok || apiErr.Code != model.ErrCodeInvalidState {
			t.Errorf("state=%q: err = %v, want INVALID_STATE", state, err)
		}
	}
}

// TestClaimTokenUnknownState は未発行のstateで空が返ることを検証する。
func TestClaimTokenUnknownState(t *testing.T) {
	service := NewService(&mockUserRepo{}, newMemoryStateStore(), 5*time.Minute, testLogger())

	grant, err := service.ClaimToken(context.Background(), testState)
	if err != nil {
		t.Fatalf("ClaimToken() error = %v", err)
	}
	if grant != nil {
		t.Errorf("grant = %+v, want nil", grant)
	}
}

// TestVerifyToken はベアラートークンの検証を検証する。
func TestVerifyToken(t *testing.T) {
	token := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	user := &model.User{ID: "user-1", SubscriptionTier: model.TierPro}
	userRepo := &mockUserRepo{userByHash: map[string]*model.User{
		HashToken(token): user,
	}}
	service := NewService(userRepo, newMemoryStateStore(), 5*time.Minute, testLogger())

	t.Run("有効なトークン", func(t *testing.T) {
		got, err := service.VerifyToken(context.Background(), token)
		if err != nil {
			t.Fatalf("VerifyToken() error = %v", err)
		}
		if got.ID != "user-1" {
			t.Errorf("ID = %s, want user-1", got.ID)
		}
	})

	t.Run("未知のトークン", func(t *testing.T) {
		_, err := service.VerifyToken(context.Background(), "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
		assertUnauthorized(t, err)
	})

	t.Run("短すぎるトークン", func(t *testing.T) {
		_, err := service.VerifyToken(context.Background(), "short")
		assertUnauthorized(t, err)
	})

	t.Run("空のトークン", func(t *testing.T) {
		_, err := service.VerifyToken(context.Background(), "")
		assertUnauthorized(t, err)
	})
}

// TestIssueTokenRotation は再発行で古いトークンのハッシュが
// 差し替わることを検証する。
func TestIssueTokenRotation(t *testing.T) {
	userRepo := &mockUserRepo{user: &model.User{ID: "user-1"}}
	states := newMemoryStateStore()
	service := NewService(userRepo, states, 5*time.Minute, testLogger())

	if err := service.IssueToken(context.Background(), "user-1", testState); err != nil {
		t.Fatalf("IssueToken() 1回目 error = %v", err)
	}
	firstHash := userRepo.storedHash

	if err := service.IssueToken(context.Background(), "user-1", testState); err != nil {
		t.Fatalf("IssueToken() 2回目 error = %v", err)
	}
	if userRepo.storedHash == firstHash {
		t.Error("再発行でトークンハッシュが変わっていません")
	}
}

// assertUnauthorized はエラーがUNAUTHORIZEDのAPIErrorであることを検証する。
func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("エラーが返されていません")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("err = %v, want UNAUTHORIZED", err)
	}
}
