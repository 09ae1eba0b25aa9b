package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the generated tsvector column of
// document_translations.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing is served anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches plainto_tsquery against the translation vector, ranked with
// ts_rank and with ts_headline snippets over the description.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	where, args := buildWhere(q)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM document_translations t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT t.document_id, t.locale, t.title, t.slug,
			ts_headline('simple', coalesce(t.description, ''), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM document_translations t
		WHERE %s
		ORDER BY ts_rank(t.fts, plainto_tsquery('simple', $1)) DESC, t.updated_at DESC
		LIMIT %d OFFSET %d`, where, limitOrDefault(q.Limit), offsetOrZero(q.Offset))

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.DocumentID, &r.Locale, &r.Title, &r.Slug, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.ID = RecordID(r.DocumentID, r.Locale)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func buildWhere(q Query) (string, []any) {
	where := "t.fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if q.Locale != "" {
		where += " AND t.locale = $2"
		args = append(args, q.Locale)
	}
	return where, args
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func offsetOrZero(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// LoadAllRecords returns all translations for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TranslationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT document_id, locale, title, slug, description, markup
		FROM document_translations
		ORDER BY document_id, locale
	`)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	defer rows.Close()

	records := make([]TranslationRecord, 0)
	for rows.Next() {
		var r TranslationRecord
		var markup string
		if err := rows.Scan(&r.DocumentID, &r.Locale, &r.Title, &r.Slug, &r.Description, &markup); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		r.ID = RecordID(r.DocumentID, r.Locale)
		r.Body = PlainText(markup)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translations: %w", err)
	}
	return records, nil
}
