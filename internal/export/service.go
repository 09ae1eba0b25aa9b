package export

import (
	"context"
	"fmt"
	"html/template"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
)

// Source loads the persisted row of one translation.
type Source interface {
	GetTranslation(ctx context.Context, documentID, locale string) (content.Row, error)
}

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides document export functionality
type Service struct {
	source Source
	pdf    converter
	docx   converter
}

// NewService creates an export service backed by headless Chrome and pandoc.
func NewService(source Source) *Service {
	return &Service{source: source, pdf: exportPDF, docx: exportDOCX}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	var convert converter
	switch req.Format {
	case FormatPDF:
		convert = s.pdf
	case FormatDOCX:
		convert = s.docx
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	row, err := s.source.GetTranslation(ctx, req.DocumentID, req.Locale)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}

	body, err := bodyHTML(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}

	html, err := RenderDocumentHTML(TemplateData{
		Title:       row.Title,
		Description: row.Description,
		Locale:      row.Locale,
		ContentHTML: template.HTML(body),
		UpdatedAt:   row.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return convert(ctx, html, row.Title)
}

// bodyHTML prefers the stored markup and falls back to rendering the tree.
func bodyHTML(row content.Row) (string, error) {
	if row.Markup != "" {
		return row.Markup, nil
	}
	tree, err := richtext.Decode(row.Content)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return richtext.RenderHTML(tree), nil
}
