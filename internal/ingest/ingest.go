// Package ingest runs the per-identifier pipeline: resolve an edition,
// classify its visibility, and materialize the book with its relationship
// graph exactly once per work. Batches are idempotent; the scrape ledger
// makes re-runs cheap and crash recovery possible.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lepinkainen/stacks/internal/book"
	"github.com/lepinkainen/stacks/internal/catalog"
	"github.com/lepinkainen/stacks/internal/covers"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

// Resolver maps a raw identifier to the record that should be ingested.
// *resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, goodreadsID string) (*book.Record, error)
}

// Classifier applies visibility policy to records the resolver left
// visible. *rules.Engine satisfies it.
type Classifier interface {
	Classify(rec *book.Record) book.HiddenReason
}

// CoverFetcher downloads cover art for newly created books.
// *covers.Downloader satisfies it.
type CoverFetcher interface {
	Download(ctx context.Context, workID, imageURL string) (*covers.Result, error)
}

// Failure names one identifier that could not be ingested and why.
type Failure struct {
	GoodreadsID string
	Reason      string
	Err         error
}

// Result sums up one batch run.
type Result struct {
	Created []*catalog.Book
	Skipped int
	Failed  []Failure
}

// Service is the ingestion orchestrator.
type Service struct {
	store    *catalog.Store
	resolver Resolver
	rules    Classifier
	covers   CoverFetcher
}

// New wires an orchestrator over the given store, resolver and rule engine.
func New(store *catalog.Store, resolver Resolver, rules Classifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		rules:    rules,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithCovers enables cover downloads for created books.
func WithCovers(c CoverFetcher) Option {
	return func(s *Service) {
		s.covers = c
	}
}

// IngestIDs processes the identifiers one at a time. A failing identifier
// is reported in the result and never aborts the batch; only an empty id
// list or context cancellation returns an error. Cancellation is honored
// between identifiers, with the partial result returned alongside it.
func (s *Service) IngestIDs(ctx context.Context, goodreadsIDs []string, source string) (*Result, error) {
	if len(goodreadsIDs) == 0 {
		return nil, fmt.Errorf("ingest: no identifiers given")
	}

	log := slog.With("batch", uuid.NewString(), "source", source)
	log.Info("starting ingest", "count", len(goodreadsIDs))

	result := &Result{}
	for _, goodreadsID := range goodreadsIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		created, skipped, err := s.ingestOne(ctx, log, goodreadsID, source)
		switch {
		case err != nil:
			log.Warn("ingest failed",
				"goodreads_id", goodreadsID,
				"reason", stackerrors.Kind(err),
				"error", err)
			result.Failed = append(result.Failed, Failure{
				GoodreadsID: goodreadsID,
				Reason:      stackerrors.Kind(err),
				Err:         err,
			})
		case skipped:
			result.Skipped++
		default:
			result.Created = append(result.Created, created)
		}
	}

	log.Info("ingest finished",
		"created", len(result.Created),
		"skipped", result.Skipped,
		"failed", len(result.Failed))

	return result, nil
}

func (s *Service) ingestOne(ctx context.Context, log *slog.Logger, goodreadsID, source string) (*catalog.Book, bool, error) {
	existing, err := s.store.BookByGoodreadsID(ctx, goodreadsID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		log.Debug("already ingested", "goodreads_id", goodreadsID)
		return nil, true, nil
	}

	entry, err := s.store.LedgerGet(ctx, goodreadsID)
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		if entry.Resolved() {
			byWork, err := s.store.BookByWorkID(ctx, entry.WorkID)
			if err != nil {
				return nil, false, err
			}
			if byWork != nil {
				log.Debug("work already ingested",
					"goodreads_id", goodreadsID,
					"work_id", entry.WorkID)
				return nil, true, nil
			}
		}
		// The ledger says this id was attempted but no book exists: a
		// prior run crashed between the ledger write and the create.
		// Drop the stale row and resolve afresh.
		if err := s.store.LedgerDelete(ctx, goodreadsID); err != nil {
			return nil, false, err
		}
	}

	rec, err := s.resolver.Resolve(ctx, goodreadsID)
	if err != nil {
		return nil, false, err
	}

	// The resolver's hidden verdict wins; rules only run on visible records.
	if !rec.Hidden {
		if reason := s.rules.Classify(rec); reason != "" {
			rec.Hide(reason)
		}
	}

	// Ledger before create: a crash between the two is recovered by the
	// stale-row check above instead of a full re-fetch.
	if err := s.store.LedgerPut(ctx, goodreadsID, rec.WorkID); err != nil {
		return nil, false, err
	}

	byWork, err := s.store.BookByWorkID(ctx, rec.WorkID)
	if err != nil {
		return nil, false, err
	}
	if byWork != nil {
		log.Debug("work already ingested under another id",
			"goodreads_id", goodreadsID,
			"work_id", rec.WorkID)
		return nil, true, nil
	}

	created, err := s.store.CreateBook(ctx, rec, source)
	if err != nil {
		if stackerrors.IsDuplicateWorkError(err) {
			// A concurrent writer materialized the work between the
			// existence check and the insert.
			log.Debug("work created concurrently, skipping",
				"goodreads_id", goodreadsID,
				"work_id", rec.WorkID)
			return nil, true, nil
		}
		return nil, false, err
	}

	s.fetchCover(ctx, log, rec)

	log.Info("ingested book",
		"goodreads_id", rec.GoodreadsID,
		"work_id", rec.WorkID,
		"title", rec.Title,
		"hidden", rec.Hidden)

	return created, false, nil
}

// fetchCover downloads cover art for a visible book. Failures are logged
// and swallowed; the book is already committed.
func (s *Service) fetchCover(ctx context.Context, log *slog.Logger, rec *book.Record) {
	if s.covers == nil || rec.Hidden || rec.ImageURL == "" {
		return
	}
	if _, err := s.covers.Download(ctx, rec.WorkID, rec.ImageURL); err != nil {
		log.Warn("cover download failed", "work_id", rec.WorkID, "error", err)
	}
}
