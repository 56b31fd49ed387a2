package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grabbit/grabbit/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// userColumns はusersテーブルのSELECT列リスト。
const userColumns = `id, email, subscription_tier, extension_token_hash,
	extension_token_created_at, last_sync_at, created_at, updated_at`

// scanUser は1行分のユーザーをスキャンする。
func scanUser(scan func(dest ...any) error) (*model.User, error) {
	u := &model.User{}
	var tokenHash sql.NullString
	var tokenCreatedAt, lastSyncAt sql.NullTime

	err := scan(
		&u.ID, &u.Email, &u.SubscriptionTier,
		&tokenHash, &tokenCreatedAt, &lastSyncAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.ExtensionTokenHash = tokenHash.String
	if tokenCreatedAt.Valid {
		u.ExtensionTokenCreatedAt = &tokenCreatedAt.Time
	}
	if lastSyncAt.Valid {
		u.LastSyncAt = &lastSyncAt.Time
	}

	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByExtensionTokenHash は拡張機能トークンのハッシュでユーザーを検索する。
func (r *PostgresUserRepo) FindByExtensionTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE extension_token_hash = $1`, tokenHash)

	user, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トークンによるユーザーの検索に失敗しました: %w", err)
	}
	return user, nil
}

// UpdateExtensionToken はユーザーの拡張機能トークンハッシュを差し替える。
func (r *PostgresUserRepo) UpdateExtensionToken(ctx context.Context, userID, tokenHash string, createdAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET extension_token_hash = $1, extension_token_created_at = $2, updated_at = now()
		 WHERE id = $3`,
		tokenHash, createdAt, userID,
	)
	if err != nil {
		return fmt.Errorf("拡張機能トークンの更新に失敗しました: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("トークン更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// UpdateLastSyncAt はユーザーの最終同期日時を更新する。
func (r *PostgresUserRepo) UpdateLastSyncAt(ctx context.Context, userID string, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_sync_at = $1, updated_at = now() WHERE id = $2`,
		syncedAt, userID,
	)
	if err != nil {
		return fmt.Errorf("最終同期日時の更新に失敗しました: %w", err)
	}
	return nil
}
