package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/content"
)

// Backend is a search index that can also be written to.
type Backend interface {
	Searcher
	Indexer
}

// RecordLoader reads every indexable translation from the primary database.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]TranslationRecord, error)
}

// Service is the facade that tries the index first and falls back to PG FTS.
type Service struct {
	index    Backend
	fallback Searcher
	loader   RecordLoader
	logger   logrus.FieldLogger
}

// NewService creates a search service. index may be nil if Meilisearch is not
// configured.
func NewService(index Backend, fallback Searcher, loader RecordLoader, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{index: index, fallback: fallback, loader: loader, logger: logger}
}

// Search tries the index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("search: index error, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSet pushes every filled translation of a saved set into the index and
// removes blank ones. Without a healthy index it does nothing; PG FTS reads
// the saved rows directly.
func (s *Service) IndexSet(_ context.Context, set *content.Set) error {
	if !s.indexReady() {
		return nil
	}
	records, stale := RecordsFromSet(set)
	if len(records) > 0 {
		if err := s.index.IndexTranslations(records); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		if err := s.index.DeleteTranslations(stale); err != nil {
			return err
		}
	}
	return nil
}

// ReindexAll reads all translations from PG and pushes them to the index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.WithError(err).Error("search: reindex load failed")
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.index.IndexTranslations(records); err != nil {
		s.logger.WithError(err).Error("search: reindex translations")
		return
	}
	s.logger.WithField("count", len(records)).Info("search: reindexed translations")
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
