package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/auth"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/config"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/store"
)

const (
	testSecret = "test-secret"
	publicBase = "https://cdn.test/media/"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]media.Pending
	deleted []string
}

func (s *fakeStorage) List(_ context.Context, prefix, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix+"/"+pattern) {
			names = append(names, strings.TrimPrefix(key, prefix+"/"))
		}
	}
	return names, nil
}

func (s *fakeStorage) Put(_ context.Context, key string, p media.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = p
	return nil
}

func (s *fakeStorage) PublicURL(key string) string { return publicBase + key }

func (s *fakeStorage) Delete(_ context.Context, addresses []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, addresses...)
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string][]content.Row
	pingErr   error
	upsertErr error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) LoadDocumentRows(_ context.Context, documentID string) ([]content.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[documentID], nil
}

func (f *fakeStore) UpsertDocumentRows(_ context.Context, rows []content.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
	}
	if len(rows) > 0 {
		f.rows[rows[0].DocumentID] = rows
	}
	return nil
}

func (f *fakeStore) ListTranslations(_ context.Context, locale string, _ int) ([]store.TranslationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []store.TranslationSummary{}
	for _, rows := range f.rows {
		for _, row := range rows {
			if row.Locale == locale {
				items = append(items, store.TranslationSummary{DocumentID: row.DocumentID, Locale: row.Locale, Title: row.Title, Slug: row.Slug})
			}
		}
	}
	return items, nil
}

func (f *fakeStore) GetTranslationBySlug(_ context.Context, locale, slug string) (content.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rows := range f.rows {
		for _, row := range rows {
			if row.Locale == locale && row.Slug == slug {
				return row, nil
			}
		}
	}
	return content.Row{}, store.ErrNotFound
}

type testEnv struct {
	service *Service
	server  *httptest.Server
	store   *fakeStore
	storage *fakeStorage
	logs    *test.Hook
}

func newTestEnv(t *testing.T, configure func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	logger, logs := test.NewNullLogger()
	cfg := config.Config{
		JWTSecret:     testSecret,
		CORSOrigin:    "*",
		DefaultLocale: "en",
		Locales:       []string{"en", "fr"},
		MediaMaxBytes: 1 << 20,
	}
	storage := &fakeStorage{objects: map[string]media.Pending{}}
	fs := &fakeStore{rows: map[string][]content.Row{}}
	deps := Deps{
		Store:  fs,
		Engine: reconcile.New(storage, reconcile.Options{Folder: "content", Concurrency: 2, Logger: logger}),
		Logger: logger,
	}
	if configure != nil {
		configure(&cfg, &deps)
	}
	svc := New(cfg, deps)
	server := httptest.NewServer(NewHTTPServer(svc, cfg.CORSOrigin, logger).Handler())
	t.Cleanup(server.Close)
	return &testEnv{service: svc, server: server, store: fs, storage: storage, logs: logs}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	signed, _, err := auth.IssueToken([]byte(testSecret), auth.Claims{Sub: userID, Name: "User " + userID, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (e *testEnv) upload(t *testing.T, path, bearer, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write(data)
	_ = writer.WriteField("position", "0")
	_ = writer.Close()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, res *http.Response, want int) {
	t.Helper()
	if res.StatusCode != want {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("%s %s status = %d, want %d; body=%s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, body)
	}
}

type editorResponse struct {
	SessionID  string   `json:"sessionId"`
	DocumentID string   `json:"documentId"`
	IsNew      bool     `json:"isNew"`
	State      string   `json:"state"`
	Dirty      []string `json:"dirty"`
}

type errorResponse struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake image payload")...)

// openFilledSession opens a new document and fills the default locale so it
// passes validation.
func (e *testEnv) openFilledSession(t *testing.T, bearer string) editorResponse {
	t.Helper()
	res := e.do(t, http.MethodPost, "/api/editor/sessions", bearer, map[string]any{})
	expectStatus(t, res, http.StatusCreated)
	view := decode[editorResponse](t, res)

	res = e.do(t, http.MethodPut, "/api/editor/sessions/"+view.SessionID+"/locales/en", bearer, map[string]any{
		"title":       "Hello World",
		"description": "A short greeting",
		"doc": map[string]any{"type": "doc", "content": []any{
			map[string]any{"type": "heading", "attrs": map[string]any{"level": 2}, "content": []any{map[string]any{"type": "text", "text": "Intro"}}},
			map[string]any{"type": "paragraph", "content": []any{map[string]any{"type": "text", "text": "Body"}}},
		}},
	})
	expectStatus(t, res, http.StatusOK)
	return decode[editorResponse](t, res)
}
