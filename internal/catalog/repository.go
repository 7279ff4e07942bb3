package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	ListAssets(ctx context.Context) ([]Asset, error)
	GetAsset(ctx context.Context, id string) (*Asset, error)
	ReplaceAssets(ctx context.Context, assets []Asset) error
	CountAssets(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const assetColumns = `id, kind, name, source_url, image_duration, original_duration, trim_start, trim_end, revision, created_at`

func (r *SQLiteRepository) ListAssets(ctx context.Context) ([]Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *SQLiteRepository) GetAsset(ctx context.Context, id string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ReplaceAssets overwrites the persisted playlist with assets, in order, in a
// single transaction.
func (r *SQLiteRepository) ReplaceAssets(ctx context.Context, assets []Asset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM assets"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear assets: %w", err)
	}

	for i, a := range assets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (id, position, kind, name, source_url, image_duration, original_duration, trim_start, trim_end, revision, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, i, string(a.Kind), a.Name, a.SourceURL, a.ImageDuration, a.OriginalDuration,
			a.TrimStart, nullFloat(a.TrimEnd), a.Revision, a.CreatedAt.Format(time.RFC3339))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert asset %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) CountAssets(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (Asset, error) {
	var a Asset
	var kind, createdAt string
	var trimEnd sql.NullFloat64

	err := row.Scan(&a.ID, &kind, &a.Name, &a.SourceURL, &a.ImageDuration, &a.OriginalDuration,
		&a.TrimStart, &trimEnd, &a.Revision, &createdAt)
	if err != nil {
		return Asset{}, err
	}

	a.Kind = Kind(kind)
	if trimEnd.Valid {
		end := trimEnd.Float64
		a.TrimEnd = &end
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
