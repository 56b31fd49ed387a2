// Package auth はブラウザ拡張機能の接続トークンの発行・受け渡し・検証を提供する。
//
// 接続フローでは、ログイン済みのWebアプリがstateに紐づけてトークンの
// 発行を要求し、拡張機能が同じstateでポーリングして一度だけ受け取る。
// 受け渡し中のトークンはTTL付きでRedisに保持され、取得と同時に削除される。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateKeyPrefix はRedis上のstateキーのプレフィックス。
const stateKeyPrefix = "extauth:state:"

// TokenGrant はstateに紐づく受け渡し待ちのトークンを表す。
type TokenGrant struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// StateStore は受け渡し待ちトークンの一時保管インターフェース。
type StateStore interface {
	// Put はstateに紐づけてトークンをTTL付きで保管する。
	// 同一stateへの再発行は上書きになる。
	Put(ctx context.Context, state string, grant TokenGrant, ttl time.Duration) error

	// TakeOnce はstateに紐づくトークンを取得と同時に削除する。
	// 存在しない（未発行・期限切れ・取得済み）場合はnilを返す。
	TakeOnce(ctx context.Context, state string) (*TokenGrant, error)
}

// redisStateStore はRedisを使ったStateStoreの実装。
// GETDELにより「一度だけ取得できる」セマンティクスを原子的に実現する。
type redisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore はRedisベースのStateStoreを生成する。
func NewRedisStateStore(client *redis.Client) *redisStateStore {
	return &redisStateStore{client: client}
}

// Put はstateに紐づけてトークンをTTL付きで保管する。
func (s *redisStateStore) Put(ctx context.Context, state string, grant TokenGrant, ttl time.Duration) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKeyPrefix+state, payload, ttl).Err()
}

// TakeOnce はstateに紐づくトークンを原子的に取得・削除する。
func (s *redisStateStore) TakeOnce(ctx context.Context, state string) (*TokenGrant, error) {
	payload, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var grant TokenGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}
