package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/stacks/internal/book"
	"github.com/lepinkainen/stacks/internal/catalog"
	"github.com/lepinkainen/stacks/internal/covers"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

type fakeResolver struct {
	records map[string]*book.Record
	errs    map[string]error
	calls   []string
}

func (f *fakeResolver) Resolve(_ context.Context, goodreadsID string) (*book.Record, error) {
	f.calls = append(f.calls, goodreadsID)
	if err := f.errs[goodreadsID]; err != nil {
		return nil, err
	}
	rec, ok := f.records[goodreadsID]
	if !ok {
		return nil, stackerrors.NewFetchError("book/show/"+goodreadsID, 3, errors.New("no fixture"))
	}
	cp := *rec
	return &cp, nil
}

type fakeRules struct {
	reasons map[string]book.HiddenReason
}

func (f *fakeRules) Classify(rec *book.Record) book.HiddenReason {
	return f.reasons[rec.GoodreadsID]
}

type fakeCovers struct {
	calls []string
	err   error
}

func (f *fakeCovers) Download(_ context.Context, workID, imageURL string) (*covers.Result, error) {
	f.calls = append(f.calls, workID+":"+imageURL)
	if f.err != nil {
		return nil, f.err
	}
	return &covers.Result{Downloaded: true}, nil
}

func record(goodreadsID, workID, title string) *book.Record {
	return &book.Record{
		GoodreadsID:   goodreadsID,
		WorkID:        workID,
		Title:         title,
		Description:   "A novel.",
		Language:      "English",
		Format:        "Paperback",
		Pages:         391,
		Rating:        4.27,
		RatingCount:   132456,
		PublishedDate: "February 23, 2010",
		PublishState:  book.StatePublished,
		ImageURL:      "https://images.example.com/1494157.jpg",
		Authors: []book.AuthorRef{
			{GoodreadsID: "5807106", Name: "Iain M. Banks"},
		},
		Genres: []string{"Science Fiction"},
	}
}

func newService(t *testing.T, opts ...Option) (*Service, *catalog.Store, *fakeResolver, *fakeRules) {
	t.Helper()

	store, err := catalog.Open(filepath.Join(t.TempDir(), "stacks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resolver := &fakeResolver{records: map[string]*book.Record{}, errs: map[string]error{}}
	rules := &fakeRules{reasons: map[string]book.HiddenReason{}}

	return New(store, resolver, rules, opts...), store, resolver, rules
}

func TestIngestCreatesBook(t *testing.T) {
	svc, store, resolver, _ := newService(t)
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	result, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)

	require.Len(t, result.Created, 1)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "The Player of Games", result.Created[0].Title)
	assert.Equal(t, "manual", result.Created[0].Source)

	// The resolution is ledgered for future runs.
	entry, err := store.LedgerGet(context.Background(), "18630542")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "1494157", entry.WorkID)
}

func TestIngestIdempotent(t *testing.T) {
	svc, _, resolver, _ := newService(t)
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	first, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 1, second.Skipped)

	// The second run never re-resolves.
	assert.Equal(t, []string{"18630542"}, resolver.calls)
}

func TestIngestDeduplicatesByWork(t *testing.T) {
	svc, store, resolver, _ := newService(t)

	// Two distinct editions of one work, each resolving to itself with
	// the shared work id.
	resolver.records["857986"] = record("857986", "1494157", "The Player of Games")
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	result, err := svc.IngestIDs(context.Background(), []string{"857986", "18630542"}, "manual")
	require.NoError(t, err)

	assert.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Skipped)

	existing, err := store.BookByWorkID(context.Background(), "1494157")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "857986", existing.GoodreadsID)

	// Both identifiers are ledgered against the one work.
	for _, id := range []string{"857986", "18630542"} {
		entry, err := store.LedgerGet(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, entry, id)
		assert.Equal(t, "1494157", entry.WorkID)
	}
}

func TestIngestWorkDedupAcrossBatches(t *testing.T) {
	svc, store, resolver, _ := newService(t)

	resolver.records["857986"] = record("857986", "1494157", "The Player of Games")
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	first, err := svc.IngestIDs(context.Background(), []string{"857986"}, "manual")
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	second, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, 1, second.Skipped)

	existing, err := store.BookByGoodreadsID(context.Background(), "857986")
	require.NoError(t, err)
	assert.NotNil(t, existing)
}

func TestIngestLedgerRecovery(t *testing.T) {
	svc, store, resolver, _ := newService(t)
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	// Simulate a prior run that ledgered the resolution but crashed
	// before creating the book.
	require.NoError(t, store.LedgerPut(context.Background(), "18630542", "1494157"))

	result, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)

	require.Len(t, result.Created, 1)
	assert.Equal(t, []string{"18630542"}, resolver.calls, "stale ledger row must trigger a fresh resolution")

	existing, err := store.BookByWorkID(context.Background(), "1494157")
	require.NoError(t, err)
	assert.NotNil(t, existing)
}

func TestIngestUnresolvedLedgerRowRetries(t *testing.T) {
	svc, store, resolver, _ := newService(t)
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	// An attempted-but-unresolved row must not block a retry.
	require.NoError(t, store.LedgerPut(context.Background(), "18630542", ""))

	result, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	assert.Len(t, result.Created, 1)
}

func TestIngestResolverFailureIsolated(t *testing.T) {
	svc, store, resolver, _ := newService(t)
	resolver.records["101"] = record("101", "901", "Consider Phlebas")
	resolver.errs["102"] = stackerrors.NewFetchError("book/show/102", 3, errors.New("connection reset"))
	resolver.records["103"] = record("103", "903", "Use of Weapons")

	result, err := svc.IngestIDs(context.Background(), []string{"101", "102", "103"}, "manual")
	require.NoError(t, err)

	assert.Len(t, result.Created, 2)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "102", result.Failed[0].GoodreadsID)
	assert.Equal(t, "FetchError", result.Failed[0].Reason)

	// A failed resolution writes no ledger row, leaving the id eligible
	// for the next run.
	entry, err := store.LedgerGet(context.Background(), "102")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIngestHiddenByResolver(t *testing.T) {
	svc, store, resolver, rules := newService(t)

	rec := record("857986", "1494157", "El jugador")
	rec.Hide(book.HiddenNoEnglishEditions)
	resolver.records["857986"] = rec

	// The rule engine must not run on already hidden records.
	rules.reasons["857986"] = book.HiddenLowVoteCount

	result, err := svc.IngestIDs(context.Background(), []string{"857986"}, "manual")
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	created, err := store.BookByWorkID(context.Background(), "1494157")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.Hidden)
	assert.Equal(t, string(book.HiddenNoEnglishEditions), created.HiddenReason)
}

func TestIngestHiddenByRules(t *testing.T) {
	svc, store, resolver, rules := newService(t)
	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")
	rules.reasons["18630542"] = book.HiddenLowVoteCount

	result, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	created, err := store.BookByWorkID(context.Background(), "1494157")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.Hidden)
	assert.Equal(t, string(book.HiddenLowVoteCount), created.HiddenReason)
}

func TestIngestEmptyIDList(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.IngestIDs(context.Background(), nil, "manual")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no identifiers")
}

func TestIngestHonorsCancellation(t *testing.T) {
	svc, _, resolver, _ := newService(t)
	resolver.records["101"] = record("101", "901", "Consider Phlebas")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.IngestIDs(ctx, []string{"101", "102"}, "manual")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Created)
	assert.Empty(t, resolver.calls)
}

func TestIngestDownloadsCover(t *testing.T) {
	fetcher := &fakeCovers{}
	svc, _, resolver, _ := newService(t, WithCovers(fetcher))

	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	_, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)

	assert.Equal(t, []string{"1494157:https://images.example.com/1494157.jpg"}, fetcher.calls)
}

func TestIngestSkipsCoverForHidden(t *testing.T) {
	fetcher := &fakeCovers{}
	svc, _, resolver, rules := newService(t, WithCovers(fetcher))

	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")
	rules.reasons["18630542"] = book.HiddenLowVoteCount

	_, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	assert.Empty(t, fetcher.calls)
}

func TestIngestCoverFailureNotFatal(t *testing.T) {
	fetcher := &fakeCovers{err: errors.New("image host down")}
	svc, _, resolver, _ := newService(t, WithCovers(fetcher))

	resolver.records["18630542"] = record("18630542", "1494157", "The Player of Games")

	result, err := svc.IngestIDs(context.Background(), []string{"18630542"}, "manual")
	require.NoError(t, err)
	assert.Len(t, result.Created, 1)
	assert.Empty(t, result.Failed)
}
