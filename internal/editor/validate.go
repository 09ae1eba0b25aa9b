package editor

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/slug"
)

// DefaultMaxDescriptionWords caps the short description of every locale.
const DefaultMaxDescriptionWords = 50

type translationInput struct {
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Body        *richtext.Node `json:"content"`
}

// WordCount counts whitespace-delimited tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// ValidateForSave checks a set before any upload happens. The default locale
// must be complete; other locales are checked only once any field is filled.
func ValidateForSave(set *content.Set, maxWords int) error {
	if set == nil {
		return ErrNotLoaded
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxDescriptionWords
	}

	errs := validation.Errors{}
	for _, locale := range set.Ordered() {
		t, ok := set.Translation(locale)
		isDefault := locale == set.DefaultLocale
		if !ok {
			if isDefault {
				errs[locale] = validation.NewError("validation_locale_missing", "default locale is missing")
			}
			continue
		}
		if !isDefault && t.IsBlank() {
			continue
		}
		in := translationInput{
			Title:       strings.TrimSpace(t.Title),
			Slug:        strings.TrimSpace(t.Slug),
			Description: strings.TrimSpace(t.Description),
			Body:        t.Body.Tree,
		}
		err := validation.ValidateStruct(&in,
			validation.Field(&in.Title, validation.Required),
			validation.Field(&in.Slug, validation.Required, validation.By(validSlug)),
			validation.Field(&in.Description,
				validation.When(isDefault, validation.Required),
				validation.By(maxWordsRule(maxWords)),
			),
			validation.Field(&in.Body, validation.When(isDefault, validation.By(nonEmptyContent))),
		)
		if err != nil {
			errs[locale] = err
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// checkPendingMedia rejects ephemeral references the registry cannot resolve.
// Saving them would persist a handle that is meaningless outside this session.
func checkPendingMedia(ctx context.Context, set *content.Set, registry media.Registry) error {
	errs := validation.Errors{}
	for _, locale := range set.Ordered() {
		t, ok := set.Translation(locale)
		if !ok {
			continue
		}
		for ref := range richtext.ExtractReferences(t.Body.Tree) {
			if !media.IsEphemeral(ref) {
				continue
			}
			_, found, err := registry.Get(ctx, ref)
			if err != nil {
				return &reconcile.UploadError{Reference: ref, Err: fmt.Errorf("resolve pending media: %w", err)}
			}
			if !found {
				errs[locale] = validation.Errors{
					"content": validation.NewError("validation_media_not_pending", fmt.Sprintf("media %s is no longer pending; attach it again", ref)),
				}
				break
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validSlug(value any) error {
	s, _ := value.(string)
	if s == "" || slug.Valid(s) {
		return nil
	}
	return validation.NewError("validation_slug_invalid", "must contain only lower-case letters, digits and single hyphens")
}

func maxWordsRule(limit int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if WordCount(s) > limit {
			return validation.NewError("validation_too_many_words", fmt.Sprintf("must be at most %d words", limit))
		}
		return nil
	}
}

func nonEmptyContent(value any) error {
	tree, _ := value.(*richtext.Node)
	if tree.IsEmpty() {
		return validation.NewError("validation_content_required", "content is required")
	}
	return nil
}
