package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = sql.ErrNoRows

// DiagramRepo caches hosted diagram URLs in Postgres (driver: pgx stdlib).
type DiagramRepo struct{ DB *sql.DB }

func NewDiagramRepo(db *sql.DB) *DiagramRepo { return &DiagramRepo{DB: db} }

const diagramSchema = `
create table if not exists diagram_cache (
  cache_key  text primary key,
  image_url  text not null,
  created_at timestamptz not null default now()
)`

func (r *DiagramRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, diagramSchema)
	return err
}

// Get returns the cached URL for key. Entries older than maxAge (when > 0) count as missing.
func (r *DiagramRepo) Get(ctx context.Context, key string, maxAge time.Duration) (string, error) {
	const q = `select image_url, created_at from diagram_cache where cache_key=$1`
	var (
		url string
		ts  time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, key).Scan(&url, &ts); err != nil {
		return "", err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return "", ErrNotFound
	}
	return url, nil
}

// Put stores or refreshes the URL for key.
func (r *DiagramRepo) Put(ctx context.Context, key, url string) error {
	const q = `
insert into diagram_cache(cache_key, image_url)
values ($1,$2)
on conflict (cache_key)
do update set image_url=excluded.image_url, created_at=now()`
	_, err := r.DB.ExecContext(ctx, q, key, url)
	return err
}

// PurgeOlderThan drops expired rows so the table doesn't grow forever.
func (r *DiagramRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from diagram_cache where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
