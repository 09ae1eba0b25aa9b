package export

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

type fakeSource struct {
	rows map[string]content.Row
}

func (f fakeSource) GetTranslation(_ context.Context, documentID, locale string) (content.Row, error) {
	row, ok := f.rows[documentID+"/"+locale]
	if !ok {
		return content.Row{}, errors.New("not found")
	}
	return row, nil
}

func recordingConverter(got *string) converter {
	return func(_ context.Context, html, title string) (*Result, error) {
		*got = html
		return &Result{Data: []byte("out"), Filename: sanitizeFilename(title) + ".bin"}, nil
	}
}

func newTestService(rows ...content.Row) (*Service, *string) {
	src := fakeSource{rows: map[string]content.Row{}}
	for _, row := range rows {
		src.rows[row.DocumentID+"/"+row.Locale] = row
	}
	var rendered string
	svc := NewService(src)
	svc.pdf = recordingConverter(&rendered)
	svc.docx = recordingConverter(&rendered)
	return svc, &rendered
}

func TestExportRendersStoredTranslation(t *testing.T) {
	svc, rendered := newTestService(content.Row{
		DocumentID:  "doc-1",
		Locale:      "fr",
		Title:       "Bonjour le monde",
		Description: "Résumé",
		Markup:      "<p>Contenu</p>\n",
		UpdatedAt:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	})

	res, err := svc.Export(context.Background(), Request{DocumentID: "doc-1", Locale: "fr", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Bonjour-le-monde.bin" {
		t.Errorf("Filename = %q", res.Filename)
	}
	for _, want := range []string{`lang="fr"`, "Bonjour le monde", "Résumé", "<p>Contenu</p>", "Mar 4, 2026"} {
		if !strings.Contains(*rendered, want) {
			t.Errorf("rendered HTML missing %q:\n%s", want, *rendered)
		}
	}
}

func TestExportRendersTreeWhenMarkupMissing(t *testing.T) {
	svc, rendered := newTestService(content.Row{
		DocumentID: "doc-1",
		Locale:     "en",
		Title:      "Doc",
		Content:    json.RawMessage(`{"type":"doc","content":[{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Section"}]}]}`),
	})

	if _, err := svc.Export(context.Background(), Request{DocumentID: "doc-1", Locale: "en", Format: FormatDOCX}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(*rendered, "<h2>Section</h2>") {
		t.Errorf("rendered HTML missing heading:\n%s", *rendered)
	}
}

func TestExportErrors(t *testing.T) {
	svc, _ := newTestService(content.Row{DocumentID: "doc-1", Locale: "en", Content: json.RawMessage(`{`)})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "unknown format", req: Request{DocumentID: "doc-1", Locale: "en", Format: "odt"}, want: ErrUnsupportedFormat},
		{name: "missing translation", req: Request{DocumentID: "doc-1", Locale: "de", Format: FormatPDF}, want: ErrContentUnavailable},
		{name: "corrupt content", req: Request{DocumentID: "doc-1", Locale: "en", Format: FormatPDF}, want: ErrContentUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Export(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Export() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{" docx ", FormatDOCX, false},
		{"odt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.input, got, err)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderDocumentHTMLKeepsContentUnescaped(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "Test <Document>",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("content HTML was escaped")
	}
	if !strings.Contains(html, "Test &lt;Document&gt;") {
		t.Error("title was not escaped")
	}
	if strings.Contains(html, `class="meta"`) {
		t.Error("zero UpdatedAt should omit the date line")
	}
}
