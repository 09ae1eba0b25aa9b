package content

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
)

func imageDoc(srcs ...string) *richtext.Node {
	root := richtext.NewDoc()
	for _, src := range srcs {
		root.Content = append(root.Content, &richtext.Node{Type: "image", Attrs: map[string]any{"src": src}})
	}
	return root
}

func TestNewSetOrdersLocales(t *testing.T) {
	s := NewSet("doc_1", "en", []string{"fr", "en", "de", "fr", ""})

	want := []string{"en", "de", "fr"}
	if !reflect.DeepEqual(s.Locales, want) {
		t.Errorf("Locales = %v, want %v", s.Locales, want)
	}
	for _, locale := range want {
		tr, ok := s.Translation(locale)
		if !ok {
			t.Fatalf("missing translation for %s", locale)
		}
		if !tr.IsBlank() {
			t.Errorf("expected %s translation to be blank", locale)
		}
	}
}

func TestOrderedIncludesUnlistedTranslations(t *testing.T) {
	s := NewSet("doc_1", "en", []string{"en", "fr"})
	s.Translations["ar"] = NewTranslation("ar")

	if got := s.Ordered(); !reflect.DeepEqual(got, []string{"en", "ar", "fr"}) {
		t.Errorf("Ordered() = %v", got)
	}
	if !s.Supports("ar") || s.Supports("it") {
		t.Error("Supports() disagrees with Ordered()")
	}
}

func TestSetReferences(t *testing.T) {
	s := NewSet("doc_1", "en", []string{"en", "fr"})
	s.Translations["en"].Body.Tree = imageDoc("https://cdn/a.jpg", "https://cdn/b.jpg")
	s.Translations["fr"].Body.Tree = imageDoc("https://cdn/a.jpg", "blob:pending/x")

	got := s.References().Sorted()
	want := []string{"blob:pending/x", "https://cdn/a.jpg", "https://cdn/b.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("References() = %v, want %v", got, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSet("doc_1", "en", []string{"en"})
	s.Translations["en"].Body.Tree = imageDoc("https://cdn/a.jpg")

	c := s.Clone()
	c.Translations["en"].Title = "changed"
	c.Translations["en"].Body.Tree.Content[0].Attrs["src"] = "https://cdn/b.jpg"

	if s.Translations["en"].Title != "" {
		t.Error("Clone() shares translations")
	}
	if src := s.Translations["en"].Body.Tree.Content[0].Attrs["src"]; src != "https://cdn/a.jpg" {
		t.Errorf("Clone() shares trees, original src = %v", src)
	}
}

func TestRowsRoundTrip(t *testing.T) {
	s := NewSet("doc_1", "en", []string{"en", "fr", "de"})
	en := s.Translations["en"]
	en.Title = "  Hello  "
	en.Slug = "hello"
	en.Description = "A greeting"
	en.Body = richtext.Document{Tree: imageDoc("https://cdn/a.jpg"), Markup: `<img src="https://cdn/a.jpg">`}
	s.Translations["fr"].Title = "Bonjour"
	s.Translations["fr"].Slug = "bonjour"

	rows, err := s.Rows()
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank de translation to be omitted, got %d rows", len(rows))
	}
	if rows[0].Locale != "en" || rows[0].Title != "Hello" {
		t.Errorf("rows[0] = %+v", rows[0])
	}

	loaded, err := FromRows("doc_1", "en", []string{"en", "fr", "de"}, rows)
	if err != nil {
		t.Fatalf("FromRows() error = %v", err)
	}
	got := loaded.Translations["en"]
	if got.Title != "Hello" || got.Slug != "hello" || !got.SlugLocked {
		t.Errorf("loaded en = %+v", got)
	}
	if !reflect.DeepEqual(loaded.References(), s.References()) {
		t.Errorf("References() = %v, want %v", loaded.References(), s.References())
	}
	if !loaded.Translations["de"].IsBlank() {
		t.Error("expected missing locale to load blank")
	}
}

func TestFromRowsLenientContent(t *testing.T) {
	rows := []Row{
		{DocumentID: "doc_1", Locale: "en", Title: "T", Content: json.RawMessage(`null`)},
		{DocumentID: "doc_1", Locale: "fr", Title: "T", Content: json.RawMessage(`{"type":"doc","content":"oops"}`)},
	}
	s, err := FromRows("doc_1", "en", []string{"en", "fr"}, rows)
	if err != nil {
		t.Fatalf("FromRows() error = %v", err)
	}
	if s.Translations["en"].Body.Tree == nil {
		t.Error("expected empty tree for null content")
	}
	if n := len(s.References()); n != 0 {
		t.Errorf("expected no references, got %d", n)
	}
}

func TestFromRowsRejectsInvalidJSON(t *testing.T) {
	rows := []Row{{DocumentID: "doc_1", Locale: "en", Content: json.RawMessage(`{"type":`)}}
	if _, err := FromRows("doc_1", "en", []string{"en"}, rows); err == nil {
		t.Error("expected error for truncated content")
	}
}
