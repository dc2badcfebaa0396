package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/models"
)

const uniqueViolation = "23505"

// PostgresStorage implements Storage on PostgreSQL
type PostgresStorage struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStorage opens the pool, pings it and makes sure the schema exists.
func NewPostgresStorage(ctx context.Context, connectionString string, log *logger.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgresStorage{db: db, log: log.With("storage", "postgres")}
	if err := p.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	p.log.Info("Connected to PostgreSQL")
	return p, nil
}

func (p *PostgresStorage) createTables(ctx context.Context) error {
	query := `
  CREATE TABLE IF NOT EXISTS media_files (
      id BIGSERIAL PRIMARY KEY,
      public_id VARCHAR(500) NOT NULL,
      original_filename VARCHAR(255),
      url TEXT NOT NULL,
      secure_url TEXT NOT NULL,
      resource_type VARCHAR(10) NOT NULL CHECK (resource_type IN ('image', 'video')),
      format VARCHAR(20) NOT NULL,
      width INTEGER,
      height INTEGER,
      bytes BIGINT NOT NULL,
      duration NUMERIC(12, 3),
      entity_type VARCHAR(20) NOT NULL DEFAULT 'general'
          CHECK (entity_type IN ('pet', 'breed', 'provider', 'event', 'general')),
      entity_id BIGINT,
      created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
      updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
      CONSTRAINT media_files_duration_video CHECK (duration IS NULL OR resource_type = 'video')
  );
  `
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return err
	}

	indexQuery := `
  CREATE UNIQUE INDEX IF NOT EXISTS idx_media_files_public_id ON media_files(public_id);
  CREATE INDEX IF NOT EXISTS idx_media_files_entity ON media_files(entity_type, entity_id);
  CREATE INDEX IF NOT EXISTS idx_media_files_created_at ON media_files(created_at DESC);
  `
	_, err := p.db.ExecContext(ctx, indexQuery)
	return err
}

func (p *PostgresStorage) InsertMediaFile(ctx context.Context, f *models.MediaFile) (int64, error) {
	query := `
  INSERT INTO media_files (public_id, original_filename, url, secure_url, resource_type, format,
      width, height, bytes, duration, entity_type, entity_id)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
  RETURNING id, created_at, updated_at
  `

	err := p.db.QueryRowContext(ctx, query,
		f.PublicID,
		f.OriginalFilename,
		f.URL,
		f.SecureURL,
		string(f.ResourceType),
		f.Format,
		f.Width,
		f.Height,
		f.Bytes,
		f.Duration,
		string(f.EntityType),
		f.EntityID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrDuplicatePublicID
		}
		return 0, fmt.Errorf("insert media file: %w", err)
	}
	return f.ID, nil
}

const selectColumns = `id, public_id, original_filename, url, secure_url, resource_type, format,
      width, height, bytes, duration, entity_type, entity_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaFile(row rowScanner) (models.MediaFile, error) {
	var f models.MediaFile
	var resourceType, entityType string
	err := row.Scan(
		&f.ID,
		&f.PublicID,
		&f.OriginalFilename,
		&f.URL,
		&f.SecureURL,
		&resourceType,
		&f.Format,
		&f.Width,
		&f.Height,
		&f.Bytes,
		&f.Duration,
		&entityType,
		&f.EntityID,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	f.ResourceType = models.ResourceType(resourceType)
	f.EntityType = models.EntityType(entityType)
	return f, err
}

func (p *PostgresStorage) GetMediaFile(ctx context.Context, publicID string) (models.MediaFile, bool, error) {
	query := `SELECT ` + selectColumns + ` FROM media_files WHERE public_id = $1`

	f, err := scanMediaFile(p.db.QueryRowContext(ctx, query, publicID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MediaFile{}, false, nil
		}
		return models.MediaFile{}, false, fmt.Errorf("get media file: %w", err)
	}
	return f, true, nil
}

func (p *PostgresStorage) ListMediaFiles(ctx context.Context, filter MediaFilter) ([]models.MediaFile, error) {
	var (
		where []string
		args  []any
	)
	if filter.EntityType != "" {
		args = append(args, string(filter.EntityType))
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM media_files`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(filter.Limit), normalizeOffset(filter.Offset))
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	files := make([]models.MediaFile, 0)
	for rows.Next() {
		f, err := scanMediaFile(rows)
		if err != nil {
			p.log.Warn("Error scanning media row", "error", err)
			continue
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (p *PostgresStorage) DeleteMediaFile(ctx context.Context, publicID string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM media_files WHERE public_id = $1`, publicID)
	if err != nil {
		return false, fmt.Errorf("delete media file: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}
