package search

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
)

type fakeIndex struct {
	healthy   bool
	results   []Result
	searchErr error
	indexed   []TranslationRecord
	deleted   []string
}

func (f *fakeIndex) Search(context.Context, Query) ([]Result, int, error) {
	return f.results, len(f.results), f.searchErr
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) IndexTranslations(records []TranslationRecord) error {
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeIndex) DeleteTranslations(ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeFallback struct {
	results []Result
	err     error
	calls   int
}

func (f *fakeFallback) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

func (f *fakeFallback) Healthy() bool { return true }

type fakeLoader struct {
	records []TranslationRecord
}

func (f *fakeLoader) LoadAllRecords(context.Context) ([]TranslationRecord, error) {
	return f.records, nil
}

func TestServiceSearchFallback(t *testing.T) {
	logger, _ := test.NewNullLogger()
	indexHit := []Result{{ID: "doc_1_en", Title: "From index"}}
	pgHit := []Result{{ID: "doc_1_en", Title: "From postgres"}}

	tests := []struct {
		name          string
		index         *fakeIndex
		fallbackErr   error
		wantTitle     string
		wantFallbacks int
	}{
		{"healthy index", &fakeIndex{healthy: true, results: indexHit}, nil, "From index", 0},
		{"unhealthy index", &fakeIndex{healthy: false, results: indexHit}, nil, "From postgres", 1},
		{"index error", &fakeIndex{healthy: true, searchErr: errors.New("timeout")}, nil, "From postgres", 1},
		{"no index", nil, nil, "From postgres", 1},
		{"everything down", nil, errors.New("db down"), "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeFallback{results: pgHit, err: tt.fallbackErr}
			var index Backend
			if tt.index != nil {
				index = tt.index
			}
			svc := NewService(index, fallback, nil, logger)

			resp := svc.Search(context.Background(), Query{Text: "hello"})
			if fallback.calls != tt.wantFallbacks {
				t.Errorf("fallback calls = %d, want %d", fallback.calls, tt.wantFallbacks)
			}
			if resp.Results == nil {
				t.Fatal("Results must never be nil")
			}
			if tt.wantTitle == "" {
				if len(resp.Results) != 0 {
					t.Errorf("Results = %+v, want empty", resp.Results)
				}
				return
			}
			if len(resp.Results) != 1 || resp.Results[0].Title != tt.wantTitle {
				t.Errorf("Results = %+v, want title %q", resp.Results, tt.wantTitle)
			}
		})
	}
}

func savedSet() *content.Set {
	set := content.NewSet("doc_1", "en", []string{"en", "fr"})
	en := set.Translations["en"]
	en.Title, en.Slug, en.Description = "Lisbon", "lisbon", "Three days"
	en.Body = richtext.Document{Tree: richtext.NewDoc(), Markup: "<h2>Day <em>one</em></h2>\n<p>Tram&nbsp;28 &amp; pastries</p>"}
	return set
}

func TestRecordsFromSet(t *testing.T) {
	records, stale := RecordsFromSet(savedSet())

	want := []TranslationRecord{{
		ID:          "doc_1_en",
		DocumentID:  "doc_1",
		Locale:      "en",
		Title:       "Lisbon",
		Slug:        "lisbon",
		Description: "Three days",
		Body:        "Day one Tram 28 & pastries",
	}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %+v, want %+v", records, want)
	}
	if !reflect.DeepEqual(stale, []string{"doc_1_fr"}) {
		t.Errorf("stale = %v, want [doc_1_fr]", stale)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"<p>Hello</p><p>World</p>", "Hello World"},
		{`<img src="x.jpg"><p>  spaced   out </p>`, "spaced out"},
		{"no markup", "no markup"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIndexSet(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := NewService(index, nil, nil, nil)

	if err := svc.IndexSet(context.Background(), savedSet()); err != nil {
		t.Fatalf("IndexSet() error = %v", err)
	}
	if len(index.indexed) != 1 || index.indexed[0].ID != "doc_1_en" {
		t.Errorf("indexed = %+v", index.indexed)
	}
	if !reflect.DeepEqual(index.deleted, []string{"doc_1_fr"}) {
		t.Errorf("deleted = %v", index.deleted)
	}

	down := &fakeIndex{healthy: false}
	if err := NewService(down, nil, nil, nil).IndexSet(context.Background(), savedSet()); err != nil {
		t.Fatalf("IndexSet() error = %v", err)
	}
	if len(down.indexed) != 0 {
		t.Error("expected no indexing against an unhealthy index")
	}
}

func TestReindexAll(t *testing.T) {
	index := &fakeIndex{healthy: true}
	loader := &fakeLoader{records: []TranslationRecord{{ID: "a_en"}, {ID: "b_en"}}}
	logger, hook := test.NewNullLogger()

	NewService(index, nil, loader, logger).ReindexAll(context.Background())
	if len(index.indexed) != 2 {
		t.Errorf("indexed %d records, want 2", len(index.indexed))
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["count"] != 2 {
		t.Errorf("last log entry = %v", entry)
	}
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":          raw("doc_1_en"),
		"documentId":  raw("doc_1"),
		"locale":      raw("en"),
		"slug":        raw("lisbon"),
		"title":       raw("Lisbon"),
		"description": raw("Three days"),
		"_formatted":  raw(map[string]string{"title": "<mark>Lisbon</mark>"}),
	}
	want := Result{
		ID:         "doc_1_en",
		DocumentID: "doc_1",
		Locale:     "en",
		Slug:       "lisbon",
		Title:      "<mark>Lisbon</mark>",
		Snippet:    "Three days",
	}
	if got := hitToResult(hit); got != want {
		t.Errorf("hitToResult() = %+v, want %+v", got, want)
	}
}

func TestQueryHelpers(t *testing.T) {
	if got := localeFilter("fr"); got != `locale = "fr"` {
		t.Errorf("localeFilter() = %q", got)
	}
	if got := localeFilter(""); got != "" {
		t.Errorf("localeFilter(\"\") = %q", got)
	}

	where, args := buildWhere(Query{Text: "tram", Locale: "en"})
	if where != "t.fts @@ plainto_tsquery('simple', $1) AND t.locale = $2" || !reflect.DeepEqual(args, []any{"tram", "en"}) {
		t.Errorf("buildWhere() = %q, %v", where, args)
	}

	limits := map[int]int{0: 20, -5: 20, 10: 10, 500: 100}
	for in, want := range limits {
		if got := limitOrDefault(in); got != want {
			t.Errorf("limitOrDefault(%d) = %d, want %d", in, got, want)
		}
	}
}
