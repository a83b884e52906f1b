package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/stacks/internal/book"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

// fakeSource serves canned records and listings and records the calls it
// sees, so tests can assert both the outcome and the fetch sequence.
type fakeSource struct {
	books       map[string]*book.Record
	editions    map[string][]book.CandidateEdition
	bookErr     map[string]error
	editionsErr map[string]error
	calls       []string
}

func (f *fakeSource) Book(_ context.Context, goodreadsID string) (*book.Record, error) {
	f.calls = append(f.calls, "book:"+goodreadsID)
	if err := f.bookErr[goodreadsID]; err != nil {
		return nil, err
	}
	rec, ok := f.books[goodreadsID]
	if !ok {
		return nil, stackerrors.NewFetchError("book/show/"+goodreadsID, 3, errors.New("no such page"))
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeSource) Editions(_ context.Context, workID string) ([]book.CandidateEdition, error) {
	f.calls = append(f.calls, "editions:"+workID)
	if err := f.editionsErr[workID]; err != nil {
		return nil, err
	}
	return f.editions[workID], nil
}

func validRecord(goodreadsID, workID string) *book.Record {
	return &book.Record{
		GoodreadsID:   goodreadsID,
		WorkID:        workID,
		Title:         "The Player of Games",
		Description:   "Gurgeh travels to the Empire of Azad.",
		Language:      "English",
		Format:        "Paperback",
		Pages:         391,
		Rating:        4.27,
		RatingCount:   132456,
		PublishedDate: "February 23, 2010",
		PublishState:  book.StatePublished,
	}
}

func validCandidate(goodreadsID string) book.CandidateEdition {
	return book.CandidateEdition{
		GoodreadsID:   goodreadsID,
		Title:         "The Player of Games",
		Language:      "English",
		Format:        "Kindle Edition",
		Pages:         305,
		PublishedDate: "July 29, 2009",
	}
}

func TestResolveMainRecordValid(t *testing.T) {
	src := &fakeSource{
		books: map[string]*book.Record{"18630542": validRecord("18630542", "1494157")},
	}
	r := New(src, "English")

	rec, err := r.Resolve(context.Background(), "18630542")
	require.NoError(t, err)

	assert.Equal(t, "18630542", rec.GoodreadsID)
	assert.Equal(t, "1494157", rec.WorkID)
	assert.False(t, rec.Hidden)
	// A valid main record never touches the editions listing.
	assert.Equal(t, []string{"book:18630542"}, src.calls)
}

func TestResolveLanguageTagMatchesTarget(t *testing.T) {
	main := validRecord("18630542", "1494157")
	main.Language = "en"
	src := &fakeSource{books: map[string]*book.Record{"18630542": main}}
	r := New(src, "English")

	rec, err := r.Resolve(context.Background(), "18630542")
	require.NoError(t, err)
	assert.False(t, rec.Hidden)
}

func TestResolveSubstitutesCandidate(t *testing.T) {
	main := validRecord("857986", "1494157")
	main.Pages = 0

	// The substitute's page reports its own work id; the resolver must
	// force the original one so both identifiers dedupe to one work.
	substitute := validRecord("18630542", "9999999")

	src := &fakeSource{
		books: map[string]*book.Record{
			"857986":   main,
			"18630542": substitute,
		},
		editions: map[string][]book.CandidateEdition{
			"1494157": {validCandidate("18630542")},
		},
	}
	r := New(src, "English")

	rec, err := r.Resolve(context.Background(), "857986")
	require.NoError(t, err)

	assert.Equal(t, "18630542", rec.GoodreadsID)
	assert.Equal(t, "1494157", rec.WorkID)
	assert.False(t, rec.Hidden)
	assert.Equal(t, []string{"book:857986", "editions:1494157", "book:18630542"}, src.calls)
}

func TestResolvePicksFirstSurvivingCandidate(t *testing.T) {
	main := validRecord("857986", "1494157")
	main.Language = "Spanish"

	first := validCandidate("6617037")
	second := validCandidate("18630542")
	unusable := book.CandidateEdition{GoodreadsID: "111", Title: "The Player of Games", Format: "Audio CD"}

	src := &fakeSource{
		books: map[string]*book.Record{
			"857986":  main,
			"6617037": validRecord("6617037", "1494157"),
		},
		editions: map[string][]book.CandidateEdition{
			"1494157": {unusable, first, second},
		},
	}
	r := New(src, "English")

	rec, err := r.Resolve(context.Background(), "857986")
	require.NoError(t, err)

	assert.Equal(t, "6617037", rec.GoodreadsID)
	assert.Equal(t, []string{"book:857986", "editions:1494157", "book:6617037"}, src.calls)
}

func TestResolveNoUsableEditions(t *testing.T) {
	main := validRecord("857986", "1494157")
	main.Language = "Spanish"

	spanish := validCandidate("222")
	spanish.Language = "Spanish"

	src := &fakeSource{
		books: map[string]*book.Record{"857986": main},
		editions: map[string][]book.CandidateEdition{
			"1494157": {spanish},
		},
	}
	r := New(src, "English")

	rec, err := r.Resolve(context.Background(), "857986")
	require.NoError(t, err)

	// The original record comes back hidden, not an error.
	assert.Equal(t, "857986", rec.GoodreadsID)
	assert.True(t, rec.Hidden)
	assert.Equal(t, book.HiddenNoEnglishEditions, rec.HiddenReason)
}

func TestResolveEmptyListingReason(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*book.Record)
		reason book.HiddenReason
	}{
		{
			name:   "missing pages",
			mutate: func(r *book.Record) { r.Pages = 0 },
			reason: book.HiddenPageCountUnknown,
		},
		{
			name:   "wrong language",
			mutate: func(r *book.Record) { r.Language = "German" },
			reason: book.HiddenNoEnglishEditions,
		},
		{
			name:   "unaccepted format",
			mutate: func(r *book.Record) { r.Format = "Audiobook" },
			reason: book.HiddenInvalidFormat,
		},
		{
			name:   "missing publication date",
			mutate: func(r *book.Record) { r.PublishedDate = "" },
			reason: book.HiddenInvalidPublication,
		},
		{
			// Page count outranks publication when both are absent.
			name: "missing pages and publication date",
			mutate: func(r *book.Record) {
				r.Pages = 0
				r.PublishedDate = ""
			},
			reason: book.HiddenPageCountUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := validRecord("857986", "1494157")
			tt.mutate(main)
			src := &fakeSource{
				books:    map[string]*book.Record{"857986": main},
				editions: map[string][]book.CandidateEdition{"1494157": nil},
			}
			r := New(src, "English")

			rec, err := r.Resolve(context.Background(), "857986")
			require.NoError(t, err)
			assert.True(t, rec.Hidden)
			assert.Equal(t, tt.reason, rec.HiddenReason)
		})
	}
}

func TestResolveCandidateReasonOrder(t *testing.T) {
	englishNoPages := validCandidate("301")
	englishNoPages.Pages = 0

	englishBadFormat := validCandidate("302")
	englishBadFormat.Format = "Audio CD"

	englishNoDate := validCandidate("303")
	englishNoDate.PublishedDate = ""

	german := validCandidate("304")
	german.Language = "German"

	tests := []struct {
		name       string
		candidates []book.CandidateEdition
		reason     book.HiddenReason
	}{
		{
			name:       "no candidate in target language",
			candidates: []book.CandidateEdition{german},
			reason:     book.HiddenNoEnglishEditions,
		},
		{
			name:       "right language but no accepted format",
			candidates: []book.CandidateEdition{englishBadFormat},
			reason:     book.HiddenInvalidFormat,
		},
		{
			name:       "right language and format but no page counts",
			candidates: []book.CandidateEdition{englishNoPages},
			reason:     book.HiddenPageCountUnknown,
		},
		{
			name:       "everything seen except a publication date",
			candidates: []book.CandidateEdition{englishNoDate},
			reason:     book.HiddenInvalidPublication,
		},
		{
			// The four checks are tracked independently, so different
			// candidates may satisfy different ones: a German Kindle
			// edition covers the format check even though the English
			// candidate's own format is unaccepted.
			name:       "checks satisfied across different candidates",
			candidates: []book.CandidateEdition{englishBadFormat, german},
			reason:     book.HiddenInvalidPublication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := validRecord("857986", "1494157")
			main.Pages = 0
			src := &fakeSource{
				books:    map[string]*book.Record{"857986": main},
				editions: map[string][]book.CandidateEdition{"1494157": tt.candidates},
			}
			r := New(src, "English")

			rec, err := r.Resolve(context.Background(), "857986")
			require.NoError(t, err)
			assert.True(t, rec.Hidden)
			assert.Equal(t, tt.reason, rec.HiddenReason)
		})
	}
}

func TestResolveMainFetchError(t *testing.T) {
	src := &fakeSource{
		bookErr: map[string]error{
			"404404": stackerrors.NewFetchError("book/show/404404", 3, errors.New("connection refused")),
		},
	}
	r := New(src, "English")

	_, err := r.Resolve(context.Background(), "404404")
	require.Error(t, err)
	assert.True(t, stackerrors.IsFetchError(err))
}

func TestResolveMissingWorkID(t *testing.T) {
	main := validRecord("857986", "")
	src := &fakeSource{books: map[string]*book.Record{"857986": main}}
	r := New(src, "English")

	_, err := r.Resolve(context.Background(), "857986")
	require.Error(t, err)
	assert.True(t, stackerrors.IsParseError(err))
}

func TestResolveEditionsFetchError(t *testing.T) {
	main := validRecord("857986", "1494157")
	main.Pages = 0
	src := &fakeSource{
		books: map[string]*book.Record{"857986": main},
		editionsErr: map[string]error{
			"1494157": stackerrors.NewFetchError("work/editions/1494157", 3, errors.New("timeout")),
		},
	}
	r := New(src, "English")

	// A listing that cannot be fetched at all is a resolution failure,
	// not a hidden verdict; the identifier stays eligible for retry.
	_, err := r.Resolve(context.Background(), "857986")
	require.Error(t, err)
	assert.True(t, stackerrors.IsFetchError(err))
}

func TestResolveCandidateRefetchError(t *testing.T) {
	main := validRecord("857986", "1494157")
	main.Pages = 0
	src := &fakeSource{
		books: map[string]*book.Record{"857986": main},
		editions: map[string][]book.CandidateEdition{
			"1494157": {validCandidate("18630542")},
		},
		bookErr: map[string]error{
			"18630542": stackerrors.NewFetchError("book/show/18630542", 3, errors.New("bad gateway")),
		},
	}
	r := New(src, "English")

	_, err := r.Resolve(context.Background(), "857986")
	require.Error(t, err)
	assert.True(t, stackerrors.IsFetchError(err))
}

func TestResolveDefaultLanguage(t *testing.T) {
	src := &fakeSource{
		books: map[string]*book.Record{"18630542": validRecord("18630542", "1494157")},
	}
	r := New(src, "")

	rec, err := r.Resolve(context.Background(), "18630542")
	require.NoError(t, err)
	assert.False(t, rec.Hidden)
}
