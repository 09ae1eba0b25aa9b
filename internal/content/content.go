// Package content holds the multilingual document model edited as one unit:
// a set of per-locale translations sharing a document id.
package content

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
)

// Translation is one locale's version of a document.
type Translation struct {
	Locale      string            `json:"locale"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	SlugLocked  bool              `json:"slugLocked"`
	Body        richtext.Document `json:"body"`
}

// NewTranslation returns an empty translation with an empty tree.
func NewTranslation(locale string) *Translation {
	return &Translation{Locale: locale, Body: richtext.Document{Tree: richtext.NewDoc()}}
}

// IsBlank reports whether no field of the translation has been filled.
func (t *Translation) IsBlank() bool {
	return strings.TrimSpace(t.Title) == "" &&
		strings.TrimSpace(t.Slug) == "" &&
		strings.TrimSpace(t.Description) == "" &&
		t.Body.Tree.IsEmpty()
}

func (t *Translation) Clone() *Translation {
	out := *t
	out.Body.Tree = t.Body.Tree.Clone()
	return &out
}

// Set is the collection of translations saved together.
type Set struct {
	DocumentID    string                  `json:"documentId"`
	DefaultLocale string                  `json:"defaultLocale"`
	Locales       []string                `json:"locales"`
	Translations  map[string]*Translation `json:"translations"`
}

// NewSet creates a set with an empty translation for every supported locale.
func NewSet(documentID, defaultLocale string, locales []string) *Set {
	s := &Set{
		DocumentID:    documentID,
		DefaultLocale: defaultLocale,
		Translations:  make(map[string]*Translation),
	}
	s.Locales = orderLocales(defaultLocale, locales)
	for _, locale := range s.Locales {
		s.Translations[locale] = NewTranslation(locale)
	}
	return s
}

// Ordered returns every locale of the set, default first and the rest in
// lexical order.
func (s *Set) Ordered() []string {
	locales := append([]string(nil), s.Locales...)
	for locale := range s.Translations {
		locales = append(locales, locale)
	}
	return orderLocales(s.DefaultLocale, locales)
}

// Translation returns the translation for locale.
func (s *Set) Translation(locale string) (*Translation, bool) {
	t, ok := s.Translations[locale]
	return t, ok
}

// Supports reports whether locale is one of the set's locales.
func (s *Set) Supports(locale string) bool {
	for _, l := range s.Ordered() {
		if l == locale {
			return true
		}
	}
	return false
}

func (s *Set) Clone() *Set {
	out := &Set{
		DocumentID:    s.DocumentID,
		DefaultLocale: s.DefaultLocale,
		Locales:       append([]string(nil), s.Locales...),
		Translations:  make(map[string]*Translation, len(s.Translations)),
	}
	for locale, t := range s.Translations {
		out.Translations[locale] = t.Clone()
	}
	return out
}

// References is the union of media references across all translations.
func (s *Set) References() media.ReferenceSet {
	refs := make(media.ReferenceSet)
	for _, t := range s.Translations {
		for ref := range richtext.ExtractReferences(t.Body.Tree) {
			refs.Add(ref)
		}
	}
	return refs
}

func orderLocales(defaultLocale string, locales []string) []string {
	seen := map[string]struct{}{}
	var rest []string
	for _, locale := range locales {
		if locale == "" || locale == defaultLocale {
			continue
		}
		if _, ok := seen[locale]; ok {
			continue
		}
		seen[locale] = struct{}{}
		rest = append(rest, locale)
	}
	sort.Strings(rest)
	if defaultLocale == "" {
		return rest
	}
	return append([]string{defaultLocale}, rest...)
}

// Row is the persisted form of one translation.
type Row struct {
	DocumentID  string          `json:"documentId"`
	Locale      string          `json:"locale"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content"`
	Markup      string          `json:"markup"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// FromRows builds a set from persisted rows. Supported locales without a row
// get an empty translation. Persisted slugs are locked so that loading never
// changes a published address.
func FromRows(documentID, defaultLocale string, locales []string, rows []Row) (*Set, error) {
	s := NewSet(documentID, defaultLocale, locales)
	for _, row := range rows {
		tree, err := richtext.Decode(row.Content)
		if err != nil {
			return nil, fmt.Errorf("decode %s content: %w", row.Locale, err)
		}
		if tree == nil {
			tree = richtext.NewDoc()
		}
		s.Translations[row.Locale] = &Translation{
			Locale:      row.Locale,
			Title:       row.Title,
			Slug:        row.Slug,
			Description: row.Description,
			SlugLocked:  row.Slug != "",
			Body:        richtext.Document{Tree: tree, Markup: row.Markup},
		}
	}
	s.Locales = s.Ordered()
	return s, nil
}

// Rows converts the set to persistence rows. Blank translations other than
// the default locale are omitted.
func (s *Set) Rows() ([]Row, error) {
	var rows []Row
	for _, locale := range s.Ordered() {
		t, ok := s.Translations[locale]
		if !ok || (locale != s.DefaultLocale && t.IsBlank()) {
			continue
		}
		tree := t.Body.Tree
		if tree == nil {
			tree = richtext.NewDoc()
		}
		raw, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("encode %s content: %w", locale, err)
		}
		rows = append(rows, Row{
			DocumentID:  s.DocumentID,
			Locale:      locale,
			Title:       strings.TrimSpace(t.Title),
			Slug:        t.Slug,
			Description: strings.TrimSpace(t.Description),
			Content:     raw,
			Markup:      t.Body.Markup,
		})
	}
	return rows, nil
}
