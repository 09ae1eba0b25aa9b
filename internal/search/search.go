// Package search indexes saved translations and answers public full-text
// queries, using Meilisearch when it is reachable and PostgreSQL otherwise.
package search

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Locale     string `json:"locale"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Locale string // empty = all locales
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push translations into a search index.
type Indexer interface {
	IndexTranslations(records []TranslationRecord) error
	DeleteTranslations(ids []string) error
}

// TranslationRecord is the data indexed for one locale of a document.
type TranslationRecord struct {
	ID          string `json:"id"`
	DocumentID  string `json:"documentId"`
	Locale      string `json:"locale"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Body        string `json:"body"`
}

// RecordID is the index key of a translation.
func RecordID(documentID, locale string) string {
	return documentID + "_" + locale
}

// RecordsFromSet splits a saved set into records to index and ids of blank
// translations to drop from the index.
func RecordsFromSet(set *content.Set) (records []TranslationRecord, stale []string) {
	for _, locale := range set.Ordered() {
		t, ok := set.Translation(locale)
		if !ok {
			continue
		}
		id := RecordID(set.DocumentID, locale)
		if t.IsBlank() {
			stale = append(stale, id)
			continue
		}
		records = append(records, TranslationRecord{
			ID:          id,
			DocumentID:  set.DocumentID,
			Locale:      locale,
			Title:       t.Title,
			Slug:        t.Slug,
			Description: t.Description,
			Body:        PlainText(t.Body.Markup),
		})
	}
	return records, stale
}

// PlainText strips tags from markup and collapses whitespace.
func PlainText(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
