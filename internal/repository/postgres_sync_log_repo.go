package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grabbit/grabbit/internal/model"
)

// PostgresSyncLogRepo はPostgreSQLを使用した同期監査ログリポジトリ。
type PostgresSyncLogRepo struct {
	db *sql.DB
}

// NewPostgresSyncLogRepo はPostgresSyncLogRepoを生成する。
func NewPostgresSyncLogRepo(db *sql.DB) *PostgresSyncLogRepo {
	return &PostgresSyncLogRepo{db: db}
}

// Create は同期開始時のログ行を作成する。
func (r *PostgresSyncLogRepo) Create(ctx context.Context, log *model.SyncLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_logs (id, user_id, items_synced, items_failed, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		log.ID, log.UserID, log.ItemsSynced, log.ItemsFailed, log.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("同期ログの作成に失敗しました: %w", err)
	}
	return nil
}

// Finalize は同期完了時にカウンタと完了日時を確定する。
func (r *PostgresSyncLogRepo) Finalize(ctx context.Context, id string, synced, failed int, completedAt time.Time, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_logs SET items_synced = $1, items_failed = $2, completed_at = $3, error = $4
		 WHERE id = $5`,
		synced, failed, completedAt, nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("同期ログの確定に失敗しました: %w", err)
	}
	return nil
}
