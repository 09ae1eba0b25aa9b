package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrSlugConflict is returned when another document already uses a slug
	// in the same locale.
	ErrSlugConflict = errors.New("store: slug already in use")
)

// TranslationSummary is a listing entry for a saved translation.
type TranslationSummary struct {
	DocumentID  string    `json:"documentId"`
	Locale      string    `json:"locale"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
