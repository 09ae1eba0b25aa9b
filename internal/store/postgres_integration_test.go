package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CONTENT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CONTENT_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	logger, _ := test.NewNullLogger()
	applied, err := ApplyMigrations(ctx, db, migrationsDir, logger)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected migrations to be applied on a fresh schema")
	}
	again, err := ApplyMigrations(ctx, db, migrationsDir, logger)
	if err != nil || len(again) != 0 {
		t.Fatalf("second ApplyMigrations() = %v, %v; want no-op", again, err)
	}
	return db
}

func row(documentID, locale, slug string) content.Row {
	return content.Row{
		DocumentID:  documentID,
		Locale:      locale,
		Title:       "Title " + slug,
		Slug:        slug,
		Description: "About " + slug,
		Content:     json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`),
		Markup:      "<p>hello</p>\n",
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	if err := s.UpsertDocumentRows(ctx, []content.Row{row("doc_1", "en", "hello"), row("doc_1", "fr", "bonjour")}); err != nil {
		t.Fatalf("UpsertDocumentRows() error = %v", err)
	}
	rows, err := s.LoadDocumentRows(ctx, "doc_1")
	if err != nil {
		t.Fatalf("LoadDocumentRows() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Locale != "en" || rows[1].Locale != "fr" {
		t.Fatalf("LoadDocumentRows() = %+v", rows)
	}

	// Dropping fr from the next save prunes it.
	if err := s.UpsertDocumentRows(ctx, []content.Row{row("doc_1", "en", "hello-again")}); err != nil {
		t.Fatalf("UpsertDocumentRows() error = %v", err)
	}
	rows, _ = s.LoadDocumentRows(ctx, "doc_1")
	if len(rows) != 1 || rows[0].Slug != "hello-again" {
		t.Fatalf("LoadDocumentRows() after prune = %+v", rows)
	}

	got, err := s.GetTranslationBySlug(ctx, "en", "hello-again")
	if err != nil || got.DocumentID != "doc_1" {
		t.Fatalf("GetTranslationBySlug() = %+v, %v", got, err)
	}
	if _, err := s.GetTranslationBySlug(ctx, "en", "hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTranslationBySlug(old) error = %v, want ErrNotFound", err)
	}

	list, err := s.ListTranslations(ctx, "en", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTranslations() = %+v, %v", list, err)
	}

	missing, err := s.LoadDocumentRows(ctx, "doc_missing")
	if err != nil || len(missing) != 0 {
		t.Errorf("LoadDocumentRows(missing) = %v, %v", missing, err)
	}
}

func TestPostgresStoreSlugConflict(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	if err := s.UpsertDocumentRows(ctx, []content.Row{row("doc_1", "en", "same")}); err != nil {
		t.Fatalf("UpsertDocumentRows() error = %v", err)
	}
	err := s.UpsertDocumentRows(ctx, []content.Row{row("doc_2", "en", "same")})
	if !errors.Is(err, ErrSlugConflict) {
		t.Fatalf("UpsertDocumentRows() error = %v, want ErrSlugConflict", err)
	}
	if rows, _ := s.LoadDocumentRows(ctx, "doc_2"); len(rows) != 0 {
		t.Errorf("conflicting save left rows behind: %+v", rows)
	}
	// Same slug in another locale is fine.
	if err := s.UpsertDocumentRows(ctx, []content.Row{row("doc_2", "fr", "same")}); err != nil {
		t.Errorf("UpsertDocumentRows(fr) error = %v", err)
	}
}

func TestUpsertRejectsMixedDocuments(t *testing.T) {
	s := NewPostgresStore(nil)
	err := s.UpsertDocumentRows(context.Background(), []content.Row{row("doc_1", "en", "a"), row("doc_2", "en", "b")})
	if err == nil || !strings.Contains(err.Error(), "mixed document ids") {
		t.Errorf("UpsertDocumentRows() error = %v", err)
	}
}
