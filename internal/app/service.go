package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/auth"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/config"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/editor"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/export"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/gitrepo"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/outline"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/rbac"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/search"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/store"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/util"
)

type dataStore interface {
	editor.Persistence
	Ping(ctx context.Context) error
	ListTranslations(ctx context.Context, locale string, limit int) ([]store.TranslationSummary, error)
	GetTranslationBySlug(ctx context.Context, locale, slug string) (content.Row, error)
}

type revisionArchive interface {
	CommitRevision(set *content.Set, author, message string) (gitrepo.CommitInfo, bool, error)
	History(documentID string, limit int) ([]gitrepo.CommitInfo, error)
	GetRevision(documentID, hash string) (gitrepo.Revision, []gitrepo.FieldChange, error)
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexSet(ctx context.Context, set *content.Set) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// RegistryFactory returns the pending media registry of one editing session.
type RegistryFactory func(sessionID string) media.Registry

// Deps are the collaborators a Service is built from. Search, Revisions and
// Exporter are optional.
type Deps struct {
	Store      dataStore
	Engine     *reconcile.Engine
	Registries RegistryFactory
	Search     searchService
	Revisions  revisionArchive
	Exporter   exporter
	Logger     logrus.FieldLogger
}

// Session is the authenticated caller of a request.
type Session struct {
	UserID   string
	UserName string
	Role     rbac.Role
}

type editingSession struct {
	id        string
	ownerID   string
	host      *editor.Host
	expiresAt time.Time
}

type Service struct {
	cfg        config.Config
	store      dataStore
	engine     *reconcile.Engine
	registries RegistryFactory
	search     searchService
	revisions  revisionArchive
	exporter   exporter
	logger     logrus.FieldLogger

	sessionTTL time.Duration
	sessionMu  sync.Mutex
	sessions   map[string]*editingSession
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registries := deps.Registries
	if registries == nil {
		registries = func(string) media.Registry { return media.NewMemoryRegistry() }
	}
	ttl := cfg.EditorSessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		engine:     deps.Engine,
		registries: registries,
		search:     deps.Search,
		revisions:  deps.Revisions,
		exporter:   deps.Exporter,
		logger:     logger,
		sessionTTL: ttl,
		sessions:   make(map[string]*editingSession),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:   claims.Sub,
		UserName: claims.Name,
		Role:     rbac.Normalize(claims.Role),
	}, nil
}

// EditorView is the client-facing state of an editing session.
type EditorView struct {
	SessionID  string       `json:"sessionId"`
	DocumentID string       `json:"documentId"`
	IsNew      bool         `json:"isNew"`
	State      editor.State `json:"state"`
	Dirty      []string     `json:"dirty"`
	Set        *content.Set `json:"set"`
	ExpiresAt  time.Time    `json:"expiresAt"`
}

// TranslationPatch carries the fields of one locale to change. Nil fields are
// left alone.
type TranslationPatch struct {
	Title       *string         `json:"title"`
	Slug        *string         `json:"slug"`
	Description *string         `json:"description"`
	Doc         json.RawMessage `json:"doc"`
}

// OpenEditor starts an editing session on documentID, or on a new document
// when documentID is empty.
func (s *Service) OpenEditor(ctx context.Context, session Session, documentID string) (EditorView, error) {
	id := util.NewID("edit")
	host := editor.NewHost(s.store, s.engine, s.registries(id), editor.Options{
		DefaultLocale:       s.cfg.DefaultLocale,
		Locales:             s.cfg.Locales,
		MaxDescriptionWords: s.cfg.MaxDescriptionWords,
		Logger:              s.logger.WithField("editor_session", id),
		Hooks:               s.saveHooks(session),
	})
	if err := host.Load(ctx, documentID); err != nil {
		return EditorView{}, err
	}

	es := &editingSession{id: id, ownerID: session.UserID, host: host}
	s.sessionMu.Lock()
	es.expiresAt = time.Now().Add(s.sessionTTL)
	s.sessions[id] = es
	s.sessionMu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"editor_session": id,
		"user_id":        session.UserID,
		"is_new":         host.IsNew(),
	}).Info("editor session opened")
	return s.view(es)
}

func (s *Service) GetEditor(session Session, sessionID string) (EditorView, error) {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return EditorView{}, err
	}
	return s.view(es)
}

// UpdateTranslation applies patch to one locale. Title is applied before slug
// so an explicit slug wins over the derived one.
func (s *Service) UpdateTranslation(session Session, sessionID, locale string, patch TranslationPatch) (EditorView, error) {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return EditorView{}, err
	}

	var tree *richtext.Node
	if len(patch.Doc) > 0 {
		tree, err = richtext.Decode(patch.Doc)
		if err != nil {
			return EditorView{}, domainError(http.StatusBadRequest, "INVALID_DOCUMENT", "doc is not a valid document tree", nil)
		}
	}

	if patch.Title != nil {
		if err := es.host.SetTitle(locale, *patch.Title); err != nil {
			return EditorView{}, err
		}
	}
	if patch.Slug != nil {
		if err := es.host.SetSlug(locale, *patch.Slug); err != nil {
			return EditorView{}, err
		}
	}
	if patch.Description != nil {
		if err := es.host.SetDescription(locale, *patch.Description); err != nil {
			return EditorView{}, err
		}
	}
	if len(patch.Doc) > 0 {
		if err := es.host.SetDocument(locale, tree); err != nil {
			return EditorView{}, err
		}
	}
	return s.view(es)
}

// AttachMedia registers a pending payload and inserts it into locale's tree.
func (s *Service) AttachMedia(ctx context.Context, session Session, sessionID, locale string, p media.Pending, position int) (string, EditorView, error) {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return "", EditorView{}, err
	}
	if s.cfg.MediaMaxBytes > 0 && int64(len(p.Data)) > s.cfg.MediaMaxBytes {
		return "", EditorView{}, domainError(http.StatusRequestEntityTooLarge, "MEDIA_TOO_LARGE", "Media exceeds the size limit", map[string]any{"maxBytes": s.cfg.MediaMaxBytes})
	}
	ref, err := es.host.InsertMedia(ctx, locale, p, position)
	if err != nil {
		return "", EditorView{}, err
	}
	view, err := s.view(es)
	return ref, view, err
}

func (s *Service) PendingMedia(ctx context.Context, session Session, sessionID, ref string) (media.Pending, error) {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return media.Pending{}, err
	}
	p, ok, err := es.host.Pending(ctx, ref)
	if err != nil {
		return media.Pending{}, err
	}
	if !ok {
		return media.Pending{}, domainError(http.StatusNotFound, "MEDIA_NOT_FOUND", "Pending media not found", nil)
	}
	return p, nil
}

func (s *Service) SaveEditor(ctx context.Context, session Session, sessionID string) (*editor.SaveResult, error) {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return nil, err
	}
	return es.host.Save(ctx)
}

// DiscardEditor drops the session together with its pending media.
func (s *Service) DiscardEditor(ctx context.Context, session Session, sessionID string) error {
	es, err := s.editingSession(session, sessionID)
	if err != nil {
		return err
	}
	s.sessionMu.Lock()
	delete(s.sessions, sessionID)
	s.sessionMu.Unlock()
	return es.host.Discard(ctx)
}

// Post is a published translation rendered for readers.
type Post struct {
	DocumentID  string         `json:"documentId"`
	Locale      string         `json:"locale"`
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	HTML        string         `json:"html"`
	Outline     []outline.Item `json:"outline"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (s *Service) ListPosts(ctx context.Context, locale string, limit int) ([]store.TranslationSummary, error) {
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}
	return s.store.ListTranslations(ctx, locale, limit)
}

func (s *Service) GetPost(ctx context.Context, locale, slug string) (Post, error) {
	row, err := s.store.GetTranslationBySlug(ctx, locale, slug)
	if err != nil {
		return Post{}, err
	}
	markup := row.Markup
	if markup == "" {
		tree, err := richtext.Decode(row.Content)
		if err != nil {
			return Post{}, fmt.Errorf("decode post content: %w", err)
		}
		markup = richtext.RenderHTML(tree)
	}
	toc, err := outline.Extract(markup)
	if err != nil {
		return Post{}, fmt.Errorf("build outline: %w", err)
	}
	return Post{
		DocumentID:  row.DocumentID,
		Locale:      row.Locale,
		Title:       row.Title,
		Slug:        row.Slug,
		Description: row.Description,
		HTML:        toc.HTML,
		Outline:     toc.Items,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) DocumentHistory(documentID string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.revisions == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	items, err := s.revisions.History(documentID, limit)
	if errors.Is(err, gitrepo.ErrNoRepository) {
		return []gitrepo.CommitInfo{}, nil
	}
	return items, err
}

func (s *Service) DocumentRevision(documentID, hash string) (gitrepo.Revision, []gitrepo.FieldChange, error) {
	if s.revisions == nil {
		return gitrepo.Revision{}, nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	rev, changes, err := s.revisions.GetRevision(documentID, hash)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoRepository) || errors.Is(err, gitrepo.ErrRevisionNotFound) {
			return gitrepo.Revision{}, nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
		}
		return gitrepo.Revision{}, nil, err
	}
	return rev, changes, nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export not configured", nil)
	}
	if req.Locale == "" {
		req.Locale = s.cfg.DefaultLocale
	}
	return s.exporter.Export(ctx, req)
}

// saveHooks are the best-effort steps run after every successful save.
func (s *Service) saveHooks(session Session) []editor.Hook {
	var hooks []editor.Hook
	if s.search != nil {
		hooks = append(hooks, editor.Hook{Name: "search-index", Run: s.search.IndexSet})
	}
	if s.revisions != nil {
		author := session.UserName
		hooks = append(hooks, editor.Hook{Name: "revision-archive", Run: func(_ context.Context, set *content.Set) error {
			info, changed, err := s.revisions.CommitRevision(set, author, "Save "+set.DocumentID)
			if err != nil {
				return err
			}
			if changed {
				s.logger.WithFields(logrus.Fields{"document_id": set.DocumentID, "revision": info.Hash}).Debug("revision archived")
			}
			return nil
		}})
	}
	return hooks
}

// editingSession looks up a live session owned by the caller, refreshing its
// expiry. Expired sessions are swept on the way.
func (s *Service) editingSession(session Session, sessionID string) (*editingSession, error) {
	now := time.Now()
	var expired []*editingSession

	s.sessionMu.Lock()
	for key, record := range s.sessions {
		if now.After(record.expiresAt) {
			expired = append(expired, record)
			delete(s.sessions, key)
		}
	}
	es, ok := s.sessions[sessionID]
	if ok && es.ownerID == session.UserID {
		es.expiresAt = now.Add(s.sessionTTL)
	}
	s.sessionMu.Unlock()

	for _, record := range expired {
		s.dropExpired(record)
	}
	if !ok || es.ownerID != session.UserID {
		return nil, domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Editing session not found", nil)
	}
	return es, nil
}

func (s *Service) dropExpired(es *editingSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := es.host.Discard(ctx); err != nil {
		s.logger.WithError(err).WithField("editor_session", es.id).Warn("expired session: clearing pending media failed")
		return
	}
	s.logger.WithField("editor_session", es.id).Info("editor session expired")
}

func (s *Service) view(es *editingSession) (EditorView, error) {
	set, err := es.host.Set()
	if err != nil {
		return EditorView{}, err
	}
	s.sessionMu.Lock()
	expiresAt := es.expiresAt
	s.sessionMu.Unlock()
	dirty := es.host.Dirty()
	if dirty == nil {
		dirty = []string{}
	}
	return EditorView{
		SessionID:  es.id,
		DocumentID: set.DocumentID,
		IsNew:      es.host.IsNew(),
		State:      es.host.State(),
		Dirty:      dirty,
		Set:        set,
		ExpiresAt:  expiresAt,
	}, nil
}
