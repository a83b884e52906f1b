package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lepinkainen/stacks/internal/book"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
)

// Book is one persisted catalog row.
type Book struct {
	GoodreadsID   string
	WorkID        string
	Title         string
	PublishedDate string
	PublishState  string
	Language      string
	Pages         int
	ISBN          string
	Rating        float64
	Votes         int
	Description   string
	ImageURL      string
	Source        string
	Hidden        bool
	HiddenReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const bookColumns = `goodreads_id, work_id, title, published_date, published_state,
	language, pages, isbn, goodreads_rating, goodreads_votes, description,
	image_url, source, hidden, hidden_reason, created_at, updated_at`

// BookByGoodreadsID looks a book up by its external record id. Returns
// nil without error when no row exists.
func (s *Store) BookByGoodreadsID(ctx context.Context, goodreadsID string) (*Book, error) {
	return s.bookBy(ctx, "goodreads_id", goodreadsID)
}

// BookByWorkID looks a book up by its work id. Returns nil without error
// when no row exists.
func (s *Store) BookByWorkID(ctx context.Context, workID string) (*Book, error) {
	return s.bookBy(ctx, "work_id", workID)
}

func (s *Store) bookBy(ctx context.Context, column, value string) (*Book, error) {
	query := fmt.Sprintf("SELECT %s FROM book WHERE %s = ?", bookColumns, column)
	row := s.db.QueryRowContext(ctx, query, value)

	var (
		b             Book
		publishedDate sql.NullString
		publishState  sql.NullString
		language      sql.NullString
		pages         sql.NullInt64
		isbn          sql.NullString
		rating        sql.NullFloat64
		votes         sql.NullInt64
		description   sql.NullString
		imageURL      sql.NullString
		source        sql.NullString
		hiddenReason  sql.NullString
		createdAtRaw  string
		updatedAtRaw  string
	)
	err := row.Scan(&b.GoodreadsID, &b.WorkID, &b.Title, &publishedDate, &publishState,
		&language, &pages, &isbn, &rating, &votes, &description,
		&imageURL, &source, &b.Hidden, &hiddenReason, &createdAtRaw, &updatedAtRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, stackerrors.NewPersistenceError("select book", err)
	}

	b.PublishedDate = publishedDate.String
	b.PublishState = publishState.String
	b.Language = language.String
	b.Pages = int(pages.Int64)
	b.ISBN = isbn.String
	b.Rating = rating.Float64
	b.Votes = int(votes.Int64)
	b.Description = description.String
	b.ImageURL = imageURL.String
	b.Source = source.String
	b.HiddenReason = hiddenReason.String
	if ts, err := parseTimeString(createdAtRaw); err == nil {
		b.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedAtRaw); err == nil {
		b.UpdatedAt = ts
	}
	return &b, nil
}

// CreateBook inserts the resolved record and its full relationship graph
// in one transaction. Authors and series are created or reused by their
// external id, genres by name. A uniqueness violation on the book row
// comes back as a DuplicateWorkError; everything else rolls back and
// surfaces as a PersistenceError.
func (s *Store) CreateBook(ctx context.Context, rec *book.Record, source string) (*Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, stackerrors.NewPersistenceError("begin create book", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	row := &Book{
		GoodreadsID:   rec.GoodreadsID,
		WorkID:        rec.WorkID,
		Title:         rec.Title,
		PublishedDate: NormalizeDate(rec.PublishedDate),
		PublishState:  string(rec.PublishState),
		Language:      rec.Language,
		Pages:         rec.Pages,
		ISBN:          rec.ISBN,
		Rating:        rec.Rating,
		Votes:         rec.RatingCount,
		Description:   rec.Description,
		ImageURL:      rec.ImageURL,
		Source:        source,
		Hidden:        rec.Hidden,
		HiddenReason:  string(rec.HiddenReason),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO book (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.GoodreadsID, row.WorkID, row.Title, nullable(row.PublishedDate), nullable(row.PublishState),
		nullable(row.Language), row.Pages, nullable(row.ISBN), row.Rating, row.Votes, nullable(row.Description),
		nullable(row.ImageURL), nullable(row.Source), row.Hidden, nullable(row.HiddenReason),
		timeValue(row.CreatedAt), timeValue(row.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, stackerrors.NewDuplicateWorkError(rec.WorkID, err)
		}
		return nil, stackerrors.NewPersistenceError("insert book", err)
	}

	for _, author := range rec.Authors {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO author (goodreads_id, name) VALUES (?, ?)`,
			author.GoodreadsID, author.Name); err != nil {
			return nil, stackerrors.NewPersistenceError("create author", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO book_author (work_id, author_id, role) VALUES (?, ?, ?)`,
			rec.WorkID, author.GoodreadsID, nullable(author.Role)); err != nil {
			return nil, stackerrors.NewPersistenceError("attach author", err)
		}
	}

	for _, name := range rec.Genres {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO genre (name) VALUES (?)`, name); err != nil {
			return nil, stackerrors.NewPersistenceError("create genre", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO book_genre (work_id, genre_id)
			 SELECT ?, id FROM genre WHERE name = ?`,
			rec.WorkID, name); err != nil {
			return nil, stackerrors.NewPersistenceError("attach genre", err)
		}
	}

	for _, series := range rec.Series {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO series (goodreads_id, title) VALUES (?, ?)`,
			series.GoodreadsID, series.Name); err != nil {
			return nil, stackerrors.NewPersistenceError("create series", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO book_series (work_id, series_id, series_order) VALUES (?, ?, ?)`,
			rec.WorkID, series.GoodreadsID, nullable(series.Order)); err != nil {
			return nil, stackerrors.NewPersistenceError("attach series", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, stackerrors.NewPersistenceError("commit create book", err)
	}
	return row, nil
}

// AuthorsOf returns the authors attached to a work, with roles.
func (s *Store) AuthorsOf(ctx context.Context, workID string) ([]book.AuthorRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.goodreads_id, a.name, COALESCE(ba.role, '')
		 FROM book_author ba JOIN author a ON a.goodreads_id = ba.author_id
		 WHERE ba.work_id = ? ORDER BY a.goodreads_id`, workID)
	if err != nil {
		return nil, stackerrors.NewPersistenceError("select authors", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []book.AuthorRef
	for rows.Next() {
		var ref book.AuthorRef
		if err := rows.Scan(&ref.GoodreadsID, &ref.Name, &ref.Role); err != nil {
			return nil, stackerrors.NewPersistenceError("scan author", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// GenresOf returns the genre names attached to a work.
func (s *Store) GenresOf(ctx context.Context, workID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.name FROM book_genre bg JOIN genre g ON g.id = bg.genre_id
		 WHERE bg.work_id = ? ORDER BY g.name`, workID)
	if err != nil {
		return nil, stackerrors.NewPersistenceError("select genres", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, stackerrors.NewPersistenceError("scan genre", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SeriesOf returns the series memberships attached to a work.
func (s *Store) SeriesOf(ctx context.Context, workID string) ([]book.SeriesRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT se.goodreads_id, se.title, COALESCE(bs.series_order, '')
		 FROM book_series bs JOIN series se ON se.goodreads_id = bs.series_id
		 WHERE bs.work_id = ? ORDER BY se.goodreads_id`, workID)
	if err != nil {
		return nil, stackerrors.NewPersistenceError("select series", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []book.SeriesRef
	for rows.Next() {
		var ref book.SeriesRef
		if err := rows.Scan(&ref.GoodreadsID, &ref.Name, &ref.Order); err != nil {
			return nil, stackerrors.NewPersistenceError("scan series", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// nullable maps the empty string to NULL so optional text columns stay
// NULL instead of collecting empty strings.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
