// Package reconcile turns a document set that may embed pending media into
// one that only references stored objects, and works out which stored
// objects the saved set no longer uses.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/richtext"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrNoDocument = errors.New("reconcile: no document set")

// MarkupMode selects how the markup twin of a rewritten tree is produced.
type MarkupMode string

const (
	// MarkupTree re-renders markup from the rewritten tree.
	MarkupTree MarkupMode = "tree"
	// MarkupRewrite substitutes references in the existing markup string.
	MarkupRewrite MarkupMode = "rewrite"
)

func ParseMarkupMode(s string) (MarkupMode, error) {
	switch MarkupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MarkupTree:
		return MarkupTree, nil
	case MarkupRewrite:
		return MarkupRewrite, nil
	}
	return "", fmt.Errorf("unknown markup mode %q", s)
}

// Stage is reported to Input.Progress as the pipeline advances.
type Stage string

const (
	StageUploading Stage = "uploading"
	StageRewriting Stage = "rewriting"
	StageDiffing   Stage = "diffing"
)

type Options struct {
	// Folder is the key prefix uploads are stored under, one subfolder per
	// document. That subfolder bounds which snapshot references may be
	// proposed for deletion.
	Folder      string
	Concurrency int
	MarkupMode  MarkupMode
	Logger      logrus.FieldLogger
}

type Engine struct {
	storage     media.Storage
	folder      string
	concurrency int
	markupMode  MarkupMode
	logger      logrus.FieldLogger
}

func New(storage media.Storage, opts Options) *Engine {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	mode := opts.MarkupMode
	if mode == "" {
		mode = MarkupTree
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		storage:     storage,
		folder:      strings.Trim(opts.Folder, "/"),
		concurrency: concurrency,
		markupMode:  mode,
		logger:      logger,
	}
}

type Input struct {
	Set      *content.Set
	Registry media.Registry
	// Snapshot holds the permanent references the set contained when it was
	// last loaded or saved.
	Snapshot media.ReferenceSet
	Progress func(Stage)
}

// Upload records one pending payload that was stored.
type Upload struct {
	Ephemeral string `json:"ephemeral"`
	Permanent string `json:"permanent"`
	Key       string `json:"key"`
}

type Result struct {
	Set        *content.Set       `json:"set"`
	Uploaded   []Upload           `json:"uploaded"`
	References media.ReferenceSet `json:"-"`
	// Orphaned lists snapshot references under the document's folder that the
	// finalized set no longer contains, sorted.
	Orphaned []string `json:"orphaned"`
	// Unresolved lists ephemeral references with no pending payload. They are
	// left in place.
	Unresolved []string `json:"unresolved,omitempty"`
}

// UploadError aborts a reconciliation. Nothing was rewritten and the registry
// still holds every pending payload.
type UploadError struct {
	Reference string
	Filename  string
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s (%s): %v", e.Filename, e.Reference, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type plannedUpload struct {
	ref     string
	key     string
	payload media.Pending
}

// Reconcile uploads every pending payload referenced by the set exactly once
// and returns a rewritten copy of the set. The input set is not modified.
func (e *Engine) Reconcile(ctx context.Context, in Input) (Result, error) {
	if in.Set == nil {
		return Result{}, ErrNoDocument
	}
	progress := in.Progress
	if progress == nil {
		progress = func(Stage) {}
	}
	snapshot := in.Snapshot
	if snapshot == nil {
		snapshot = media.ReferenceSet{}
	}

	progress(StageUploading)
	pending, unresolved, err := e.collect(ctx, in.Set, in.Registry)
	if err != nil {
		return Result{}, err
	}
	area := e.documentArea(in.Set.DocumentID)
	plans, err := e.plan(ctx, area, pending)
	if err != nil {
		return Result{}, err
	}
	uploaded, err := e.upload(ctx, plans)
	if err != nil {
		return Result{}, err
	}

	progress(StageRewriting)
	mapping := make(map[string]string, len(uploaded))
	for _, u := range uploaded {
		mapping[u.Ephemeral] = u.Permanent
	}
	finalized := e.rewrite(in.Set, mapping)

	progress(StageDiffing)
	refs := finalized.References()
	orphaned := e.managedOnly(area, snapshot.Difference(refs))

	for _, ref := range unresolved {
		e.logger.WithField("reference", ref).Warn("pending media not found, reference left unchanged")
	}
	return Result{
		Set:        finalized,
		Uploaded:   uploaded,
		References: refs,
		Orphaned:   orphaned,
		Unresolved: unresolved,
	}, nil
}

// collect walks locales in order and returns each distinct resolvable
// ephemeral reference once, in first-seen order.
func (e *Engine) collect(ctx context.Context, set *content.Set, registry media.Registry) ([]plannedUpload, []string, error) {
	var pending []plannedUpload
	var unresolved []string
	seen := make(map[string]struct{})
	for _, locale := range set.Ordered() {
		t, ok := set.Translation(locale)
		if !ok {
			continue
		}
		for ref := range richtext.ExtractReferences(t.Body.Tree) {
			if !media.IsEphemeral(ref) {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			if registry == nil {
				unresolved = append(unresolved, ref)
				continue
			}
			payload, found, err := registry.Get(ctx, ref)
			if err != nil {
				return nil, nil, &UploadError{Reference: ref, Err: fmt.Errorf("resolve pending media: %w", err)}
			}
			if !found {
				unresolved = append(unresolved, ref)
				continue
			}
			pending = append(pending, plannedUpload{ref: ref, payload: payload})
		}
	}
	return pending, unresolved, nil
}

// plan assigns storage keys under area. Each distinct base name is listed once
// and names chosen earlier in the same save count as taken.
func (e *Engine) plan(ctx context.Context, area string, pending []plannedUpload) ([]plannedUpload, error) {
	taken := make(map[string]struct{})
	listed := make(map[string]struct{})
	for i := range pending {
		base, ext := media.SplitFilename(pending[i].payload.Filename)
		if _, ok := listed[base]; !ok {
			names, err := e.storage.List(ctx, area, base)
			if err != nil {
				return nil, &UploadError{Reference: pending[i].ref, Filename: pending[i].payload.Filename, Err: err}
			}
			for _, name := range names {
				taken[name] = struct{}{}
			}
			listed[base] = struct{}{}
		}
		name := media.Disambiguate(base, ext, taken)
		taken[name] = struct{}{}
		pending[i].key = path.Join(area, name)
	}
	return pending, nil
}

func (e *Engine) upload(ctx context.Context, plans []plannedUpload) ([]Upload, error) {
	uploaded := make([]Upload, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range plans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.storage.Put(gctx, p.key, p.payload); err != nil {
				return &UploadError{Reference: p.ref, Filename: p.payload.Filename, Err: err}
			}
			uploaded[i] = Upload{Ephemeral: p.ref, Permanent: e.storage.PublicURL(p.key), Key: p.key}
			e.logger.WithFields(logrus.Fields{
				"reference": p.ref,
				"key":       p.key,
			}).Debug("uploaded pending media")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uploaded, nil
}

// rewrite returns a copy of set with mapping applied to every translation.
// Translations without substitutions keep their markup untouched.
func (e *Engine) rewrite(set *content.Set, mapping map[string]string) *content.Set {
	out := set.Clone()
	if len(mapping) == 0 {
		return out
	}
	for locale, t := range out.Translations {
		original := set.Translations[locale]
		if !referencesAny(original.Body.Tree, mapping) {
			continue
		}
		t.Body.Tree = richtext.RewriteReferences(original.Body.Tree, mapping)
		switch e.markupMode {
		case MarkupRewrite:
			t.Body.Markup = richtext.RewriteMarkup(original.Body.Markup, mapping)
		default:
			t.Body.Markup = richtext.RenderHTML(t.Body.Tree)
		}
	}
	return out
}

func referencesAny(tree *richtext.Node, mapping map[string]string) bool {
	for ref := range richtext.ExtractReferences(tree) {
		if _, ok := mapping[ref]; ok {
			return true
		}
	}
	return false
}

// documentArea is the key prefix owning one document's uploads.
func (e *Engine) documentArea(documentID string) string {
	return path.Join(e.folder, path.Base(strings.Trim(documentID, "/")))
}

// managedOnly keeps the references stored under area. Objects of other
// documents sharing the folder are never proposed for deletion.
func (e *Engine) managedOnly(area string, refs media.ReferenceSet) []string {
	prefix := e.storage.PublicURL(area + "/")
	out := []string{}
	for _, ref := range refs.Sorted() {
		if strings.HasPrefix(ref, prefix) {
			out = append(out, ref)
		}
	}
	return out
}

// Cleanup deletes orphaned objects. Failures are logged and never returned.
func (e *Engine) Cleanup(ctx context.Context, orphaned []string) {
	if len(orphaned) == 0 {
		return
	}
	if err := e.storage.Delete(ctx, orphaned); err != nil {
		e.logger.WithFields(logrus.Fields{
			"references": orphaned,
			"error":      err.Error(),
		}).Warn("orphaned media cleanup failed")
		return
	}
	e.logger.WithField("count", len(orphaned)).Info("orphaned media removed")
}
