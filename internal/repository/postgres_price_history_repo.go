package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grabbit/grabbit/internal/model"
)

// PostgresPriceHistoryRepo はPostgreSQLを使用した価格履歴リポジトリ。
// 履歴は追記専用のため、INSERTとSELECTのみを提供する。
type PostgresPriceHistoryRepo struct {
	db *sql.DB
}

// NewPostgresPriceHistoryRepo はPostgresPriceHistoryRepoを生成する。
func NewPostgresPriceHistoryRepo(db *sql.DB) *PostgresPriceHistoryRepo {
	return &PostgresPriceHistoryRepo{db: db}
}

// Create は価格観測を1件追記する。
func (r *PostgresPriceHistoryRepo) Create(ctx context.Context, entry *model.PriceHistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO price_history (id, listing_id, price, source, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.ListingID, entry.Price, entry.Source, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("価格履歴の追記に失敗しました: %w", err)
	}
	return nil
}

// ListByListingID はリスティングの価格履歴を記録日時の降順で返す。
func (r *PostgresPriceHistoryRepo) ListByListingID(ctx context.Context, listingID string, limit int) ([]*model.PriceHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, listing_id, price, source, recorded_at
		 FROM price_history
		 WHERE listing_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		listingID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("価格履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.PriceHistoryEntry
	for rows.Next() {
		entry := &model.PriceHistoryEntry{}
		if err := rows.Scan(&entry.ID, &entry.ListingID, &entry.Price, &entry.Source, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("価格履歴行のスキャンに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("価格履歴の読み取りに失敗しました: %w", err)
	}

	return entries, nil
}
