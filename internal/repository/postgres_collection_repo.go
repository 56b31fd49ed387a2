package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/grabbit/grabbit/internal/model"
)

// collectionColumns はcollectionsテーブルのSELECT列リスト。
const collectionColumns = `id, user_id, name, description, color, icon, cover_image_url,
	is_public, slug, views_count, clones_count, published_at, created_at, updated_at`

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// scanCollection は1行分のコレクションをスキャンする。
func scanCollection(scan func(dest ...any) error) (*model.Collection, error) {
	c := &model.Collection{}
	var description, coverImageURL, slug sql.NullString
	var publishedAt sql.NullTime

	err := scan(
		&c.ID, &c.UserID, &c.Name, &description, &c.Color, &c.Icon,
		&coverImageURL, &c.IsPublic, &slug, &c.ViewsCount, &c.ClonesCount,
		&publishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	c.CoverImageURL = coverImageURL.String
	c.Slug = slug.String
	if publishedAt.Valid {
		v := publishedAt.Time
		c.PublishedAt = &v
	}

	return c, nil
}

// Create は新規コレクションを作成する。
func (r *PostgresCollectionRepo) Create(ctx context.Context, c *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collections (
			id, user_id, name, description, color, icon, cover_image_url,
			is_public, slug, views_count, clones_count, published_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.UserID, c.Name, nullString(c.Description), c.Color, c.Icon,
		nullString(c.CoverImageURL), c.IsPublic, nullString(c.Slug),
		c.ViewsCount, c.ClonesCount, nullTime(c.PublishedAt),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コレクションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDAndUser は指定ユーザーが所有するコレクションを取得する。
func (r *PostgresCollectionRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Collection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1 AND user_id = $2`,
		id, userID)

	c, err := scanCollection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindPublicBySlug は公開中のコレクションをスラグで検索する。
func (r *PostgresCollectionRepo) FindPublicBySlug(ctx context.Context, slug string) (*model.Collection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE slug = $1 AND is_public = TRUE`,
		slug)

	c, err := scanCollection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラグによるコレクションの検索に失敗しました: %w", err)
	}
	return c, nil
}

// ListByUser はユーザーのコレクション一覧を集計付きで返す。
func (r *PostgresCollectionRepo) ListByUser(ctx context.Context, userID string) ([]*model.CollectionSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.name, c.description, c.color, c.icon,
			c.cover_image_url, c.is_public, c.slug, c.views_count, c.clones_count,
			c.published_at, c.created_at, c.updated_at,
			COUNT(l.id), COALESCE(SUM(l.current_price), 0)
		 FROM collections c
		 LEFT JOIN collection_items ci ON ci.collection_id = c.id
		 LEFT JOIN listings l ON l.id = ci.listing_id AND l.is_deleted = FALSE
		 WHERE c.user_id = $1
		 GROUP BY c.id
		 ORDER BY c.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var summaries []*model.CollectionSummary
	for rows.Next() {
		s := &model.CollectionSummary{}
		var description, coverImageURL, slug sql.NullString
		var publishedAt sql.NullTime

		err := rows.Scan(
			&s.ID, &s.UserID, &s.Name, &description, &s.Color, &s.Icon,
			&coverImageURL, &s.IsPublic, &slug, &s.ViewsCount, &s.ClonesCount,
			&publishedAt, &s.CreatedAt, &s.UpdatedAt,
			&s.ItemCount, &s.TotalValue,
		)
		if err != nil {
			return nil, fmt.Errorf("コレクション行のスキャンに失敗しました: %w", err)
		}
		s.Description = description.String
		s.CoverImageURL = coverImageURL.String
		s.Slug = slug.String
		if publishedAt.Valid {
			v := publishedAt.Time
			s.PublishedAt = &v
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コレクション一覧の読み取りに失敗しました: %w", err)
	}

	return summaries, nil
}

// Update は既存コレクションの可変フィールドを上書き更新する。
// views_count・clones_count・created_atは更新しない。
func (r *PostgresCollectionRepo) Update(ctx context.Context, c *model.Collection) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET
			name = $1, description = $2, color = $3, icon = $4,
			cover_image_url = $5, is_public = $6, slug = $7,
			published_at = $8, updated_at = $9
		 WHERE id = $10 AND user_id = $11`,
		c.Name, nullString(c.Description), c.Color, c.Icon,
		nullString(c.CoverImageURL), c.IsPublic, nullString(c.Slug),
		nullTime(c.PublishedAt), c.UpdatedAt,
		c.ID, c.UserID,
	)
	if err != nil {
		return fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はコレクションを削除する。
func (r *PostgresCollectionRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM collections WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewCollectionNotFoundError(id)
	}
	return nil
}

// AddItems はリスティングをコレクションに追加する。重複は無視される。
func (r *PostgresCollectionRepo) AddItems(ctx context.Context, collectionID string, listingIDs []string) (int, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_items (collection_id, listing_id)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT (collection_id, listing_id) DO NOTHING`,
		collectionID, pq.Array(listingIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("コレクションへの追加に失敗しました: %w", err)
	}

	added, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("追加結果の確認に失敗しました: %w", err)
	}
	return int(added), nil
}

// RemoveItems はリスティングをコレクションから外す。
func (r *PostgresCollectionRepo) RemoveItems(ctx context.Context, collectionID string, listingIDs []string) (int, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM collection_items
		 WHERE collection_id = $1 AND listing_id = ANY($2)`,
		collectionID, pq.Array(listingIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("コレクションからの削除に失敗しました: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	return int(removed), nil
}

// ListItems はコレクション内のアクティブなリスティングを追加日時の降順で返す。
func (r *PostgresCollectionRepo) ListItems(ctx context.Context, collectionID string) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.user_id, l.external_id, l.url, l.title, l.current_price,
			l.original_price, l.price_dropped, l.year, l.mileage, l.make, l.model,
			l.location, l.image_url, l.platform, l.notes, l.is_archived,
			l.is_deleted, l.saved_at, l.updated_at
		 FROM collection_items ci
		 JOIN listings l ON l.id = ci.listing_id
		 WHERE ci.collection_id = $1 AND l.is_deleted = FALSE
		 ORDER BY ci.added_at DESC`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクション内リスティングの取得に失敗しました: %w", err)
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
		return nil, fmt.Errorf("コレクション内リスティングの読み取りに失敗しました: %w", err)
	}

	return listings, nil
}

// SetCoverFromFirstItem はカバー画像が未設定の場合に限り、
// 最初に追加されたリスティングの画像をカバーに設定する。
func (r *PostgresCollectionRepo) SetCoverFromFirstItem(ctx context.Context, collectionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET cover_image_url = (
			SELECT l.image_url FROM collection_items ci
			JOIN listings l ON l.id = ci.listing_id
			WHERE ci.collection_id = $1 AND l.image_url IS NOT NULL
			ORDER BY ci.added_at ASC
			LIMIT 1
		 )
		 WHERE id = $1 AND cover_image_url IS NULL`,
		collectionID,
	)
	if err != nil {
		return fmt.Errorf("カバー画像の設定に失敗しました: %w", err)
	}
	return nil
}

// IncrementViews はパック閲覧数を1加算する。
func (r *PostgresCollectionRepo) IncrementViews(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET views_count = views_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("閲覧数の加算に失敗しました: %w", err)
	}
	return nil
}

// IncrementClones はパック複製数を1加算する。
func (r *PostgresCollectionRepo) IncrementClones(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET clones_count = clones_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("複製数の加算に失敗しました: %w", err)
	}
	return nil
}

// nullTime は*time.TimeをNULL対応の値に変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
