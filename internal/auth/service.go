package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/grabbit/grabbit/internal/model"
	"github.com/grabbit/grabbit/internal/repository"
)

const (
	// tokenBytes は生成するトークンの乱数バイト長。hex化して64文字になる。
	tokenBytes = 32
	// minTokenLength は検証時に受け付けるトークンの最小文字数。
	// これより短い値はハッシュ計算せずに拒否する。
	minTokenLength = 32
	// stateの長さの許容範囲。拡張機能は乱数由来のstateを生成する
	minStateLength = 16
	maxStateLength = 128
)

// Service は拡張機能トークンの発行・受け渡し・検証サービス。
type Service struct {
	userRepo repository.UserRepository
	states   StateStore
	stateTTL time.Duration
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, states StateStore, stateTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo: userRepo,
		states:   states,
		stateTTL: stateTTL,
		logger:   logger,
	}
}

// IssueToken はユーザーの拡張機能トークンを新規発行し、stateに紐づけて
// 受け渡し待ちとして保管する。既存のトークンは同時に無効になる。
// データベースにはトークンのSHA-256ハッシュのみを保存する。
func (s *Service) IssueToken(ctx context.Context, userID, state string) error {
	if !validState(state) {
		return model.NewInvalidStateError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)

	now := time.Now()
	if err := s.userRepo.UpdateExtensionToken(ctx, userID, HashToken(token), now); err != nil {
		return err
	}

	if err := s.states.Put(ctx, state, TokenGrant{UserID: userID, Token: token}, s.stateTTL); err != nil {
		return err
	}

	s.logger.Info("拡張機能トークンを発行しました",
		slog.String("user_id", userID),
	)
	return nil
}

// ClaimToken はstateに紐づく受け渡し待ちトークンを一度だけ返す。
// 未発行・期限切れ・取得済みのstateにはnilを返す（エラーにはしない）。
// 拡張機能はこのメソッドをポーリングで呼び出す。
func (s *Service) ClaimToken(ctx context.Context, state string) (*TokenGrant, error) {
	if !validState(state) {
		return nil, model.NewInvalidStateError()
	}
	return s.states.TakeOnce(ctx, state)
}

// VerifyToken はベアラートークンを検証し、対応するユーザーを返す。
// 無効なトークンにはUNAUTHORIZEDのAPIErrorを返す。
func (s *Service) VerifyToken(ctx context.Context, token string) (*model.User, error) {
	if len(token) < minTokenLength {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByExtensionTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// HashToken はトークンのSHA-256ハッシュをhex文字列で返す。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// validState はstateパラメータの形式を検証する。
func validState(state string) bool {
	return len(state) >= minStateLength && len(state) <= maxStateLength
}
