package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/grabbit/grabbit/internal/model"
)

// listingColumns はlistingsテーブルのSELECT列リスト。
// 各Find系メソッドでscanListingと組み合わせて使用する。
const listingColumns = `id, user_id, external_id, url, title, current_price, original_price,
	price_dropped, year, mileage, make, model, location, image_url, platform,
	notes, is_archived, is_deleted, saved_at, updated_at`

// PostgresListingRepo はPostgreSQLを使用したリスティングリポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

// scanListing は1行分のリスティングをスキャンする。
func scanListing(scan func(dest ...any) error) (*model.Listing, error) {
	l := &model.Listing{}
	var originalPrice sql.NullInt64
	var year, mileage sql.NullInt32
	var makeName, mdl, location, imageURL, notes sql.NullString

	err := scan(
		&l.ID, &l.UserID, &l.ExternalID, &l.URL, &l.Title,
		&l.CurrentPrice, &originalPrice, &l.PriceDropped,
		&year, &mileage, &makeName, &mdl, &location, &imageURL,
		&l.Platform, &notes, &l.IsArchived, &l.IsDeleted,
		&l.SavedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if originalPrice.Valid {
		v := originalPrice.Int64
		l.OriginalPrice = &v
	}
	if year.Valid {
		v := int(year.Int32)
		l.Year = &v
	}
	if mileage.Valid {
		v := int(mileage.Int32)
		l.Mileage = &v
	}
	l.Make = makeName.String
	l.Model = mdl.String
	l.Location = location.String
	l.ImageURL = imageURL.String
	l.Notes = notes.String

	return l, nil
}

// FindByID は指定IDのリスティングを取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)

	listing, err := scanListing(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リスティングの取得に失敗しました: %w", err)
	}
	return listing, nil
}

// FindByUserAndExternalID はユーザーIDと外部IDでリスティングを検索する。
func (r *PostgresListingRepo) FindByUserAndExternalID(ctx context.Context, userID, externalID string) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE user_id = $1 AND external_id = $2`,
		userID, externalID)

	listing, err := scanListing(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("外部IDによるリスティングの検索に失敗しました: %w", err)
	}
	return listing, nil
}

// MapByExternalIDs は指定した外部ID集合に一致するリスティングをマップで返す。
func (r *PostgresListingRepo) MapByExternalIDs(ctx context.Context, userID string, externalIDs []string) (map[string]*model.Listing, error) {
	result := make(map[string]*model.Listing, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE user_id = $1 AND external_id = ANY($2)`,
		userID, pq.Array(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("リスティングスナップショットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		listing, err := scanListing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("リスティング行のスキャンに失敗しました: %w", err)
		}
		result[listing.ExternalID] = listing
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リスティングスナップショットの読み取りに失敗しました: %w", err)
	}

	return result, nil
}

// CountActiveByUserID はユーザーのアクティブなリスティング数を返す。
func (r *PostgresListingRepo) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE user_id = $1 AND is_deleted = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("リスティング数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create は新規リスティングを作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, l *model.Listing) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (
			id, user_id, external_id, url, title, current_price, original_price,
			price_dropped, year, mileage, make, model, location, image_url,
			platform, notes, is_archived, is_deleted, saved_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		l.ID, l.UserID, l.ExternalID, l.URL, l.Title,
		l.CurrentPrice, nullInt64(l.OriginalPrice), l.PriceDropped,
		nullInt(l.Year), nullInt(l.Mileage),
		nullString(l.Make), nullString(l.Model), nullString(l.Location), nullString(l.ImageURL),
		l.Platform, nullString(l.Notes), l.IsArchived, l.IsDeleted,
		l.SavedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("リスティングの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存リスティングの可変フィールドを上書き更新する。
// original_priceとsaved_atは更新しない。
func (r *PostgresListingRepo) Update(ctx context.Context, l *model.Listing) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE listings SET
			url = $1, title = $2, current_price = $3, price_dropped = $4,
			year = $5, mileage = $6, make = $7, model = $8, location = $9,
			image_url = $10, platform = $11, notes = $12,
			is_archived = $13, is_deleted = $14, updated_at = $15
		 WHERE id = $16`,
		l.URL, l.Title, l.CurrentPrice, l.PriceDropped,
		nullInt(l.Year), nullInt(l.Mileage),
		nullString(l.Make), nullString(l.Model), nullString(l.Location),
		nullString(l.ImageURL), l.Platform, nullString(l.Notes),
		l.IsArchived, l.IsDeleted, l.UpdatedAt,
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("リスティングの更新に失敗しました: %w", err)
	}
	return nil
}

// SoftDelete はリスティングを論理削除する。
func (r *PostgresListingRepo) SoftDelete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET is_deleted = TRUE, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("リスティングの削除に失敗しました: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewListingNotFoundError(id)
	}
	return nil
}

// ListByUser はユーザーのアクティブなリスティング一覧を絞り込み付きで返す。
func (r *PostgresListingRepo) ListByUser(ctx context.Context, userID string, q model.ListingQuery) ([]*model.Listing, int, error) {
	where := `WHERE user_id = $1 AND is_deleted = FALSE`
	args := []any{userID}

	addArg := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if q.Platform != "" {
		addArg("platform = $%d", string(q.Platform))
	}
	if q.Make != "" {
		addArg("make ILIKE $%d", q.Make)
	}
	if q.MinPrice != nil {
		addArg("current_price >= $%d", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		addArg("current_price <= $%d", *q.MaxPrice)
	}
	if q.MinYear != nil {
		addArg("year >= $%d", *q.MinYear)
	}
	if q.MaxYear != nil {
		addArg("year <= $%d", *q.MaxYear)
	}
	if q.MaxMileage != nil {
		addArg("mileage <= $%d", *q.MaxMileage)
	}
	if q.PriceDropped {
		where += " AND price_dropped = TRUE"
	}

	// 絞り込み後の総件数
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("リスティング総件数の取得に失敗しました: %w", err)
	}

	// ソートキーは許可リストから選択する（SQLインジェクション対策）
	sortColumn := "saved_at"
	switch q.Sort {
	case model.ListingSortPrice:
		sortColumn = "current_price"
	case model.ListingSortYear:
		sortColumn = "year"
	case model.ListingSortMileage:
		sortColumn = "mileage"
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM listings %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		listingColumns, where, sortColumn, direction, direction, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("リスティング一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		listing, err := scanListing(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("リスティング行のスキャンに失敗しました: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("リスティング一覧の読み取りに失敗しました: %w", err)
	}

	return listings, total, nil
}

// ListDueForPriceCheck は自動価格再チェックの対象リスティングを返す。
func (r *PostgresListingRepo) ListDueForPriceCheck(ctx context.Context, olderThan time.Time, limit int) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE is_deleted = FALSE AND is_archived = FALSE
		   AND updated_at < $1
		   AND user_id IN (SELECT id FROM users WHERE subscription_tier = 'pro')
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("価格再チェック対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		listing, err := scanListing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("リスティング行のスキャンに失敗しました: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("価格再チェック対象の読み取りに失敗しました: %w", err)
	}

	return listings, nil
}

// --- NULL変換ヘルパー ---

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
