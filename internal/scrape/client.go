package scrape

import (
	"context"

	"github.com/lepinkainen/stacks/internal/book"
)

// Fetcher supplies raw page markup. The concrete implementation owns
// caching, pacing, egress rotation and retries; the client never sees any
// of that.
type Fetcher interface {
	BookPage(ctx context.Context, id string) ([]byte, error)
	EditionsPage(ctx context.Context, workID string, page int) ([]byte, error)
	AuthorBooksPage(ctx context.Context, authorID string, page int) ([]byte, error)
}

// Client pairs a Fetcher with the parsers and walks listing pagination.
type Client struct {
	fetcher  Fetcher
	maxPages int
}

// NewClient returns a client over f. maxEditionPages bounds how many
// listing pages one work may cost; 0 means follow pagination to the end.
func NewClient(f Fetcher, maxEditionPages int) *Client {
	return &Client{fetcher: f, maxPages: maxEditionPages}
}

// Book fetches and parses one record's main page.
func (c *Client) Book(ctx context.Context, id string) (*book.Record, error) {
	content, err := c.fetcher.BookPage(ctx, id)
	if err != nil {
		return nil, err
	}
	return ParseBook(id, content)
}

// Editions collects the rows of a work's editions listing in listing
// order, following pagination until the last page or the page bound.
func (c *Client) Editions(ctx context.Context, workID string) ([]book.CandidateEdition, error) {
	var all []book.CandidateEdition
	for page := 1; ; page++ {
		content, err := c.fetcher.EditionsPage(ctx, workID, page)
		if err != nil {
			return nil, err
		}
		rows, pagination, err := ParseEditions(workID, content)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if page >= pagination.Total {
			break
		}
		if c.maxPages > 0 && page >= c.maxPages {
			break
		}
	}
	return all, nil
}

// AuthorBooks walks an author's book listing and returns the rows in
// listing order. limit > 0 stops after that many rows.
func (c *Client) AuthorBooks(ctx context.Context, authorID string, limit int) (*AuthorListing, error) {
	var result *AuthorListing
	for page := 1; ; page++ {
		content, err := c.fetcher.AuthorBooksPage(ctx, authorID, page)
		if err != nil {
			return nil, err
		}
		listing, err := ParseAuthorBooks(authorID, content)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = listing
		} else {
			result.Books = append(result.Books, listing.Books...)
			result.Pagination = listing.Pagination
		}
		if limit > 0 && len(result.Books) >= limit {
			result.Books = result.Books[:limit]
			break
		}
		if page >= listing.Pagination.Total {
			break
		}
	}
	return result, nil
}
