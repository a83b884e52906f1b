package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/stacks/internal/book"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

func TestCreateBookPersistsGraph(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateBook(ctx, sampleRecord(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "1988-01-01", created.PublishedDate)
	assert.Equal(t, "manual", created.Source)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.BookByGoodreadsID(ctx, "18630542")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "The Player of Games", got.Title)
	assert.Equal(t, "1494157", got.WorkID)
	assert.Equal(t, 391, got.Pages)
	assert.InDelta(t, 4.27, got.Rating, 0.001)
	assert.Equal(t, 132456, got.Votes)
	assert.Equal(t, "published", got.PublishState)
	assert.False(t, got.Hidden)
	assert.Empty(t, got.HiddenReason)
	assert.Equal(t, created.CreatedAt.Unix(), got.CreatedAt.Unix())

	byWork, err := store.BookByWorkID(ctx, "1494157")
	require.NoError(t, err)
	require.NotNil(t, byWork)
	assert.Equal(t, got.GoodreadsID, byWork.GoodreadsID)

	authors, err := store.AuthorsOf(ctx, "1494157")
	require.NoError(t, err)
	assert.Equal(t, []book.AuthorRef{
		{GoodreadsID: "1405", Name: "Ken MacLeod", Role: "Introduction"},
		{GoodreadsID: "5807106", Name: "Iain M. Banks"},
	}, authors)

	genres, err := store.GenresOf(ctx, "1494157")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "Science Fiction"}, genres)

	series, err := store.SeriesOf(ctx, "1494157")
	require.NoError(t, err)
	assert.Equal(t, []book.SeriesRef{
		{GoodreadsID: "49118", Name: "Culture", Order: "2"},
	}, series)
}

func TestCreateBookDuplicateWorkID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.CreateBook(ctx, sampleRecord(), "manual")
	require.NoError(t, err)

	// different external id resolving to the same work must fail closed
	other := sampleRecord()
	other.GoodreadsID = "6617037"
	_, err = store.CreateBook(ctx, other, "manual")
	require.Error(t, err)
	assert.True(t, stackerrors.IsDuplicateWorkError(err))

	got, err := store.BookByGoodreadsID(ctx, "6617037")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateBookDuplicateGoodreadsID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.CreateBook(ctx, sampleRecord(), "manual")
	require.NoError(t, err)

	other := sampleRecord()
	other.WorkID = "999999"
	_, err = store.CreateBook(ctx, other, "manual")
	require.Error(t, err)
	assert.True(t, stackerrors.IsDuplicateWorkError(err))
}

func TestCreateBookReusesGraphEntities(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.CreateBook(ctx, sampleRecord(), "manual")
	require.NoError(t, err)

	second := sampleRecord()
	second.GoodreadsID = "8935689"
	second.WorkID = "1090427"
	second.Title = "Consider Phlebas"
	second.Series = []book.SeriesRef{{GoodreadsID: "49118", Name: "Culture", Order: "1"}}
	_, err = store.CreateBook(ctx, second, "manual")
	require.NoError(t, err)

	series, err := store.SeriesOf(ctx, "1090427")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "1", series[0].Order)

	// both works share the same author rows
	first, err := store.AuthorsOf(ctx, "1494157")
	require.NoError(t, err)
	other, err := store.AuthorsOf(ctx, "1090427")
	require.NoError(t, err)
	assert.Equal(t, first, other)
}

func TestCreateBookHidden(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := sampleRecord()
	rec.Hide(book.HiddenNoEnglishEditions)
	created, err := store.CreateBook(ctx, rec, "manual")
	require.NoError(t, err)
	assert.True(t, created.Hidden)

	got, err := store.BookByWorkID(ctx, rec.WorkID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Hidden)
	assert.Equal(t, "no_english_editions", got.HiddenReason)
}

func TestCreateBookEmptyOptionalFields(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := &book.Record{
		GoodreadsID:  "42",
		WorkID:       "43",
		Title:        "Bare Minimum",
		PublishState: book.StateUpcoming,
	}
	_, err := store.CreateBook(ctx, rec, "")
	require.NoError(t, err)

	got, err := store.BookByWorkID(ctx, "43")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.PublishedDate)
	assert.Empty(t, got.Language)
	assert.Zero(t, got.Pages)
	assert.Equal(t, "upcoming", got.PublishState)
}
