package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	_ "github.com/lib/pq"
)

const uploadSchemaSQL = `
CREATE TABLE IF NOT EXISTS photo_uploads (
	id TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	public_url TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	bytes INTEGER NOT NULL DEFAULT 0,
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS photo_uploads_listing_id_idx ON photo_uploads (listing_id);
`

const uploadColumns = `id, listing_id, session_id, status, object_key, public_url, webhook_url, bytes, width, height, created_at, updated_at`

type PostgresUploadStore struct {
	db *sql.DB
}

func NewPostgresUploadStore(ctx context.Context, dsn string) (*PostgresUploadStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresUploadStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresUploadStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, uploadSchemaSQL); err != nil {
		return fmt.Errorf("ensure photo_uploads schema: %w", err)
	}
	return nil
}

func (s *PostgresUploadStore) Close() error {
	return s.db.Close()
}

func (s *PostgresUploadStore) Create(ctx context.Context, upload domain.Upload) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO photo_uploads (`+uploadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		upload.ID,
		upload.ListingID,
		upload.SessionID,
		upload.Status,
		upload.ObjectKey,
		upload.PublicURL,
		upload.WebhookURL,
		upload.Bytes,
		upload.Width,
		upload.Height,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}

	return nil
}

func (s *PostgresUploadStore) Get(ctx context.Context, id string) (domain.Upload, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+uploadColumns+`
		 FROM photo_uploads
		 WHERE id = $1`,
		id,
	)

	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Upload{}, false, nil
		}
		return domain.Upload{}, false, fmt.Errorf("query upload: %w", err)
	}
	return upload, true, nil
}

func (s *PostgresUploadStore) UpdateStatus(ctx context.Context, id, status string) (domain.Upload, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE photo_uploads
		 SET status = $1, updated_at = $2
		 WHERE id = $3
		 RETURNING `+uploadColumns,
		status,
		time.Now().UTC(),
		id,
	)
	return finishScan(row)
}

func (s *PostgresUploadStore) Finish(ctx context.Context, id, status, objectKey, publicURL string) (domain.Upload, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE photo_uploads
		 SET status = $1, object_key = $2, public_url = $3, updated_at = $4
		 WHERE id = $5
		 RETURNING `+uploadColumns,
		status,
		objectKey,
		publicURL,
		time.Now().UTC(),
		id,
	)
	return finishScan(row)
}

func finishScan(row *sql.Row) (domain.Upload, error) {
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Upload{}, ErrUploadNotFound
		}
		return domain.Upload{}, fmt.Errorf("update upload: %w", err)
	}
	return upload, nil
}

func scanUpload(row *sql.Row) (domain.Upload, error) {
	var upload domain.Upload
	err := row.Scan(
		&upload.ID,
		&upload.ListingID,
		&upload.SessionID,
		&upload.Status,
		&upload.ObjectKey,
		&upload.PublicURL,
		&upload.WebhookURL,
		&upload.Bytes,
		&upload.Width,
		&upload.Height,
		&upload.CreatedAt,
		&upload.UpdatedAt,
	)
	return upload, err
}
