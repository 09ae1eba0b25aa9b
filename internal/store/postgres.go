package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

const (
	uniqueViolation  = "23505"
	slugConstraint   = "document_translations_locale_slug_key"
	defaultListLimit = 50
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadDocumentRows returns every translation row of a document. A document
// without rows yields an empty slice and no error.
func (s *PostgresStore) LoadDocumentRows(ctx context.Context, documentID string) ([]content.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, locale, title, slug, description, content, markup, updated_at
		FROM document_translations
		WHERE document_id = $1
		ORDER BY locale
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document rows: %w", err)
	}
	defer rows.Close()

	out := make([]content.Row, 0)
	for rows.Next() {
		var row content.Row
		var raw []byte
		if err := rows.Scan(&row.DocumentID, &row.Locale, &row.Title, &row.Slug, &row.Description, &raw, &row.Markup, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		row.Content = raw
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

// UpsertDocumentRows writes all rows of one document in a single transaction.
// Locales of that document missing from rows are removed.
func (s *PostgresStore) UpsertDocumentRows(ctx context.Context, rows []content.Row) error {
	if len(rows) == 0 {
		return nil
	}
	documentID := rows[0].DocumentID
	locales := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.DocumentID != documentID {
			return fmt.Errorf("upsert document rows: mixed document ids %s and %s", documentID, row.DocumentID)
		}
		locales = append(locales, row.Locale)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
	`, documentID); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	for _, row := range rows {
		raw := []byte(row.Content)
		if len(raw) == 0 {
			raw = []byte(`{"type":"doc"}`)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO document_translations (document_id, locale, title, slug, description, content, markup, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, NOW())
			ON CONFLICT (document_id, locale) DO UPDATE SET
				title = EXCLUDED.title,
				slug = EXCLUDED.slug,
				description = EXCLUDED.description,
				content = EXCLUDED.content,
				markup = EXCLUDED.markup,
				updated_at = NOW()
		`, row.DocumentID, row.Locale, row.Title, row.Slug, row.Description, string(raw), row.Markup)
		if err != nil {
			return fmt.Errorf("upsert translation %s: %w", row.Locale, mapWriteError(err))
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM document_translations
		WHERE document_id = $1 AND NOT (locale = ANY($2))
	`, documentID, locales); err != nil {
		return fmt.Errorf("prune translations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// ListTranslations lists saved translations in a locale, newest first.
func (s *PostgresStore) ListTranslations(ctx context.Context, locale string, limit int) ([]TranslationSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, locale, title, slug, description, updated_at
		FROM document_translations
		WHERE locale = $1
		ORDER BY updated_at DESC, document_id
		LIMIT $2
	`, locale, limit)
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	items := make([]TranslationSummary, 0)
	for rows.Next() {
		var item TranslationSummary
		if err := rows.Scan(&item.DocumentID, &item.Locale, &item.Title, &item.Slug, &item.Description, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translations: %w", err)
	}
	return items, nil
}

// GetTranslationBySlug returns the row published at locale/slug.
func (s *PostgresStore) GetTranslationBySlug(ctx context.Context, locale, slug string) (content.Row, error) {
	return s.getTranslation(ctx, `WHERE locale = $1 AND slug = $2`, locale, slug)
}

// GetTranslation returns one locale of a document.
func (s *PostgresStore) GetTranslation(ctx context.Context, documentID, locale string) (content.Row, error) {
	return s.getTranslation(ctx, `WHERE document_id = $1 AND locale = $2`, documentID, locale)
}

func (s *PostgresStore) getTranslation(ctx context.Context, where string, args ...any) (content.Row, error) {
	var row content.Row
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, locale, title, slug, description, content, markup, updated_at
		FROM document_translations `+where, args...).
		Scan(&row.DocumentID, &row.Locale, &row.Title, &row.Slug, &row.Description, &raw, &row.Markup, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Row{}, ErrNotFound
	}
	if err != nil {
		return content.Row{}, fmt.Errorf("get translation: %w", err)
	}
	row.Content = raw
	return row, nil
}

func mapWriteError(err error) error {
	if isSlugConflict(err) {
		return fmt.Errorf("%w: %v", ErrSlugConflict, err)
	}
	return err
}

func isSlugConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && strings.EqualFold(pgErr.ConstraintName, slugConstraint)
}
