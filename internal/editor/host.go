// Package editor hosts one multilingual editing session: it owns the working
// document set, the pending media attached to it and the save pipeline.
package editor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/slug"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/util"
	"github.com/sirupsen/logrus"
)

// State is the save pipeline stage a host is in.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateUploading  State = "uploading"
	StateRewriting  State = "rewriting"
	StateDiffing    State = "diffing"
	StatePersisting State = "persisting"
	StateDeleting   State = "deleting"
)

// Persistence loads and stores per-locale document rows.
type Persistence interface {
	LoadDocumentRows(ctx context.Context, documentID string) ([]content.Row, error)
	UpsertDocumentRows(ctx context.Context, rows []content.Row) error
}

// Hook runs after a successful save. Failures are logged only.
type Hook struct {
	Name string
	Run  func(ctx context.Context, set *content.Set) error
}

type Options struct {
	DefaultLocale       string
	Locales             []string
	MaxDescriptionWords int
	Logger              logrus.FieldLogger
	Hooks               []Hook
}

type Host struct {
	mu          sync.Mutex
	persistence Persistence
	engine      *reconcile.Engine
	registry    media.Registry
	logger      logrus.FieldLogger
	hooks       []Hook

	defaultLocale string
	locales       []string
	maxWords      int

	set      *content.Set
	snapshot media.ReferenceSet
	dirty    map[string]bool
	isNew    bool

	state  atomic.Value
	saving atomic.Bool
}

func NewHost(persistence Persistence, engine *reconcile.Engine, registry media.Registry, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxWords := opts.MaxDescriptionWords
	if maxWords <= 0 {
		maxWords = DefaultMaxDescriptionWords
	}
	h := &Host{
		persistence:   persistence,
		engine:        engine,
		registry:      registry,
		logger:        logger,
		hooks:         opts.Hooks,
		defaultLocale: opts.DefaultLocale,
		locales:       opts.Locales,
		maxWords:      maxWords,
		dirty:         make(map[string]bool),
	}
	h.state.Store(StateIdle)
	return h
}

// SaveResult is what a successful save reports back.
type SaveResult struct {
	Set        *content.Set       `json:"set"`
	Uploaded   []reconcile.Upload `json:"uploaded"`
	Orphaned   []string           `json:"orphaned"`
	Unresolved []string           `json:"unresolved,omitempty"`
}

// Load replaces the working set with the persisted document. An empty id
// starts a new document.
func (h *Host) Load(ctx context.Context, documentID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		h.set = content.NewSet(util.NewID("doc"), h.defaultLocale, h.locales)
		h.snapshot = media.ReferenceSet{}
		h.dirty = make(map[string]bool)
		h.isNew = true
		return nil
	}

	rows, err := h.persistence.LoadDocumentRows(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	if len(rows) == 0 {
		return ErrDocumentNotFound
	}
	set, err := content.FromRows(documentID, h.defaultLocale, h.locales, rows)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	h.set = set
	h.snapshot = permanentOnly(set.References())
	h.dirty = make(map[string]bool)
	h.isNew = false
	return nil
}

// Set returns a copy of the working set.
func (h *Host) Set() (*content.Set, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.set == nil {
		return nil, ErrNotLoaded
	}
	return h.set.Clone(), nil
}

// Snapshot returns the permanent references known to be persisted.
func (h *Host) Snapshot() media.ReferenceSet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot.Clone()
}

func (h *Host) State() State {
	return h.state.Load().(State)
}

// IsNew reports whether the working set has never been saved.
func (h *Host) IsNew() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isNew
}

// Dirty returns the locales edited since the last load or save.
func (h *Host) Dirty() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.dirty))
	for locale, dirty := range h.dirty {
		if dirty {
			out = append(out, locale)
		}
	}
	sort.Strings(out)
	return out
}

// SetTitle updates a title and, unless the slug was set by hand, re-derives
// the slug from it.
func (h *Host) SetTitle(locale, title string) error {
	return h.edit(locale, func(t *content.Translation) {
		t.Title = title
		if !t.SlugLocked {
			t.Slug = slug.Make(title)
		}
	})
}

// SetSlug pins the slug. An empty value unlocks it and derives it from the
// title again.
func (h *Host) SetSlug(locale, value string) error {
	return h.edit(locale, func(t *content.Translation) {
		value = strings.TrimSpace(value)
		if value == "" {
			t.SlugLocked = false
			t.Slug = slug.Make(t.Title)
			return
		}
		t.SlugLocked = true
		t.Slug = slug.Make(value)
	})
}

func (h *Host) SetDescription(locale, description string) error {
	return h.edit(locale, func(t *content.Translation) {
		t.Description = description
	})
}

// SetDocument replaces a locale's tree and regenerates its markup.
func (h *Host) SetDocument(locale string, tree *richtext.Node) error {
	return h.edit(locale, func(t *content.Translation) {
		if tree == nil {
			tree = richtext.NewDoc()
		}
		t.Body.Tree = tree.Clone()
		t.Body.Markup = richtext.RenderHTML(t.Body.Tree)
	})
}

// InsertMedia registers a pending payload and places a media node for it at
// the given top-level position. -1 or an out-of-range position appends.
func (h *Host) InsertMedia(ctx context.Context, locale string, p media.Pending, position int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, err := h.translation(locale)
	if err != nil {
		return "", err
	}
	ref, err := h.registry.Register(ctx, p)
	if err != nil {
		return "", fmt.Errorf("register media: %w", err)
	}

	nodeType := "image"
	if strings.HasPrefix(strings.ToLower(p.ContentType), "video/") {
		nodeType = "video"
	}
	attrs := map[string]any{"src": ref}
	if nodeType == "image" {
		attrs["alt"], _ = media.SplitFilename(p.Filename)
	}
	if t.Body.Tree == nil {
		t.Body.Tree = richtext.NewDoc()
	}
	t.Body.Tree.InsertAt(position, &richtext.Node{Type: nodeType, Attrs: attrs})
	t.Body.Markup = richtext.RenderHTML(t.Body.Tree)
	h.dirty[locale] = true
	return ref, nil
}

// Pending returns the payload behind an ephemeral reference.
func (h *Host) Pending(ctx context.Context, ref string) (media.Pending, bool, error) {
	if !media.IsEphemeral(ref) {
		return media.Pending{}, false, nil
	}
	return h.registry.Get(ctx, ref)
}

// Discard drops all pending media.
func (h *Host) Discard(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.registry.Clear(ctx); err != nil {
		return fmt.Errorf("discard pending media: %w", err)
	}
	return nil
}

// Validate runs the pre-save checks against the working set.
func (h *Host) Validate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ValidateForSave(h.set, h.maxWords)
}

// Save validates, reconciles media, persists the finalized set and then
// cleans up orphaned objects. When persistence fails the finalized set
// becomes the working set so a retry does not upload again.
func (h *Host) Save(ctx context.Context) (*SaveResult, error) {
	if !h.saving.CompareAndSwap(false, true) {
		return nil, ErrSaveInProgress
	}
	defer h.saving.Store(false)

	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.state.Store(StateIdle)

	h.state.Store(StateValidating)
	if err := ValidateForSave(h.set, h.maxWords); err != nil {
		return nil, err
	}
	if err := checkPendingMedia(ctx, h.set, h.registry); err != nil {
		return nil, err
	}

	res, err := h.engine.Reconcile(ctx, reconcile.Input{
		Set:      h.set,
		Registry: h.registry,
		Snapshot: h.snapshot,
		Progress: h.onStage,
	})
	if err != nil {
		return nil, err
	}

	h.state.Store(StatePersisting)
	rows, err := res.Set.Rows()
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if err := h.persistence.UpsertDocumentRows(ctx, rows); err != nil {
		h.set = res.Set
		return nil, &PersistenceError{Err: err}
	}

	h.set = res.Set
	h.snapshot = permanentOnly(res.References)
	h.dirty = make(map[string]bool)
	h.isNew = false
	if err := h.registry.Clear(ctx); err != nil {
		h.logger.WithError(err).WithField("document_id", res.Set.DocumentID).Warn("clear pending media failed")
	}

	h.state.Store(StateDeleting)
	h.engine.Cleanup(ctx, res.Orphaned)
	h.runHooks(ctx, res.Set)

	h.logger.WithFields(logrus.Fields{
		"document_id": res.Set.DocumentID,
		"uploaded":    len(res.Uploaded),
		"orphaned":    len(res.Orphaned),
	}).Info("document saved")

	return &SaveResult{
		Set:        res.Set.Clone(),
		Uploaded:   res.Uploaded,
		Orphaned:   res.Orphaned,
		Unresolved: res.Unresolved,
	}, nil
}

func (h *Host) onStage(stage reconcile.Stage) {
	switch stage {
	case reconcile.StageUploading:
		h.state.Store(StateUploading)
	case reconcile.StageRewriting:
		h.state.Store(StateRewriting)
	case reconcile.StageDiffing:
		h.state.Store(StateDiffing)
	}
}

func (h *Host) runHooks(ctx context.Context, set *content.Set) {
	for _, hook := range h.hooks {
		if err := hook.Run(ctx, set.Clone()); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"hook":        hook.Name,
				"document_id": set.DocumentID,
			}).Warn("after-save hook failed")
		}
	}
}

func (h *Host) edit(locale string, apply func(t *content.Translation)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.translation(locale)
	if err != nil {
		return err
	}
	apply(t)
	h.dirty[locale] = true
	return nil
}

func (h *Host) translation(locale string) (*content.Translation, error) {
	if h.set == nil {
		return nil, ErrNotLoaded
	}
	if !h.set.Supports(locale) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
	}
	t, ok := h.set.Translation(locale)
	if !ok {
		t = content.NewTranslation(locale)
		h.set.Translations[locale] = t
	}
	return t, nil
}

func permanentOnly(refs media.ReferenceSet) media.ReferenceSet {
	out := make(media.ReferenceSet, len(refs))
	for ref := range refs {
		if !media.IsEphemeral(ref) {
			out.Add(ref)
		}
	}
	return out
}
