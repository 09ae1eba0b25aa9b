// Package gitrepo archives every saved translation set as a commit in a
// per-document git repository. Each locale lives in its own file under
// translations/ so history shows which languages moved in a revision.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

const (
	branchName      = "main"
	translationsDir = "translations"
)

var (
	ErrNoRepository     = errors.New("no revisions recorded for document")
	ErrRevisionNotFound = errors.New("revision not found")
)

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is the archived form of one translation.
type Entry struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Doc         json.RawMessage `json:"doc,omitempty"`
}

// Revision is the full translation set as of one commit, keyed by locale.
type Revision struct {
	Commit  CommitInfo       `json:"commit"`
	Entries map[string]Entry `json:"entries"`
}

// FieldChange describes one field that differs between two revisions.
type FieldChange struct {
	Locale string `json:"locale"`
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EntriesFromSet converts the persisted translations of set to archive
// entries. Blank non-default translations are not archived.
func EntriesFromSet(set *content.Set) (map[string]Entry, error) {
	rows, err := set.Rows()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]Entry, len(rows))
	for _, row := range rows {
		entries[row.Locale] = Entry{
			Title:       row.Title,
			Slug:        row.Slug,
			Description: row.Description,
			Doc:         row.Content,
		}
	}
	return entries, nil
}

// CommitRevision records set as the newest revision of its document. The
// repository is created on first use. When nothing differs from the current
// head no commit is made and the head is returned with changed == false.
func (s *Service) CommitRevision(set *content.Set, author, message string) (CommitInfo, bool, error) {
	if set == nil || set.DocumentID == "" {
		return CommitInfo{}, false, errors.New("revision requires a document id")
	}
	entries, err := EntriesFromSet(set)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("collect entries: %w", err)
	}

	lock := s.documentLock(set.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(set.DocumentID)
	if err != nil {
		return CommitInfo{}, false, err
	}

	head, err := headCommit(repo)
	switch {
	case err == nil:
		current, err := readEntries(head)
		if err != nil {
			return CommitInfo{}, false, err
		}
		if !HasChanges(current, entries) {
			return toCommitInfo(head), false, nil
		}
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return CommitInfo{}, false, err
	}

	hash, err := s.commit(repo, entries, author, message)
	if err != nil {
		return CommitInfo{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// History lists revisions newest first. A limit of zero or less returns all.
func (s *Service) History(documentID string, limit int) ([]CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []CommitInfo{}, nil
		}
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetRevision loads the archived set at hash along with the changes it made
// relative to its parent. The first revision reports every field as added.
func (s *Service) GetRevision(documentID, hash string) (Revision, []FieldChange, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Revision{}, nil, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Revision{}, nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return Revision{}, nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
		}
		return Revision{}, nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	entries, err := readEntries(commitObj)
	if err != nil {
		return Revision{}, nil, err
	}

	previous := map[string]Entry{}
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return Revision{}, nil, fmt.Errorf("read parent of %s: %w", hash, err)
		}
		if previous, err = readEntries(parent); err != nil {
			return Revision{}, nil, err
		}
	}

	return Revision{Commit: toCommitInfo(commitObj), Entries: entries}, DiffFields(previous, entries), nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, filepath.Base(documentID))
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNoRepository
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(documentID string) (*git.Repository, error) {
	repo, err := s.open(documentID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNoRepository) {
		return nil, err
	}

	dir := s.repoPath(documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branchName))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branchName, err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, entries map[string]Entry, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	dir := filepath.Join(worktree.Filesystem.Root(), translationsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create translations dir: %w", err)
	}

	existing, err := os.ReadDir(dir)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("read translations dir: %w", err)
	}
	for _, file := range existing {
		if file.IsDir() {
			continue
		}
		if _, keep := entries[strings.TrimSuffix(file.Name(), ".json")]; keep {
			continue
		}
		if _, err := worktree.Remove(path.Join(translationsDir, file.Name())); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("git rm %s: %w", file.Name(), err)
		}
	}

	for locale, entry := range entries {
		payload, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("marshal %s: %w", locale, err)
		}
		name := locale + ".json"
		if err := os.WriteFile(filepath.Join(dir, name), append(payload, '\n'), 0o644); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := worktree.Add(path.Join(translationsDir, name)); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	if strings.TrimSpace(author) == "" {
		author = "editor"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@revisions.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit revision: %w", err)
	}
	return hash, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readEntries(commitObj *object.Commit) (map[string]Entry, error) {
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	entries := make(map[string]Entry)
	err = tree.Files().ForEach(func(file *object.File) error {
		dir, name := path.Split(file.Name)
		if dir != translationsDir+"/" || !strings.HasSuffix(name, ".json") {
			return nil
		}
		raw, err := file.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", file.Name, err)
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return fmt.Errorf("decode %s: %w", file.Name, err)
		}
		entries[strings.TrimSuffix(name, ".json")] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DiffFields lists the fields that differ between two revisions, ordered by
// locale and then field name. Tree changes are reported without content.
func DiffFields(from, to map[string]Entry) []FieldChange {
	locales := make(map[string]struct{}, len(from)+len(to))
	for locale := range from {
		locales[locale] = struct{}{}
	}
	for locale := range to {
		locales[locale] = struct{}{}
	}

	result := make([]FieldChange, 0)
	for locale := range locales {
		before, after := from[locale], to[locale]
		pairs := []FieldChange{
			{Field: "title", Before: before.Title, After: after.Title},
			{Field: "slug", Before: before.Slug, After: after.Slug},
			{Field: "description", Before: before.Description, After: after.Description},
		}
		for _, item := range pairs {
			if item.Before == item.After {
				continue
			}
			item.Locale = locale
			result = append(result, item)
		}
		if !bytes.Equal(normalizeDoc(before.Doc), normalizeDoc(after.Doc)) {
			result = append(result, FieldChange{
				Locale: locale,
				Field:  "doc",
				Before: "[rich content]",
				After:  "[rich content]",
			})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Locale != result[j].Locale {
			return result[i].Locale < result[j].Locale
		}
		return result[i].Field < result[j].Field
	})
	return result
}

func HasChanges(from, to map[string]Entry) bool {
	if len(from) != len(to) {
		return true
	}
	for locale, a := range from {
		b, ok := to[locale]
		if !ok {
			return true
		}
		if a.Title != b.Title || a.Slug != b.Slug || a.Description != b.Description {
			return true
		}
		if !bytes.Equal(normalizeDoc(a.Doc), normalizeDoc(b.Doc)) {
			return true
		}
	}
	return false
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func normalizeDoc(doc json.RawMessage) []byte {
	if len(doc) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s: %v", ErrRevisionNotFound, hash, err)
	}
	return *resolved, nil
}
