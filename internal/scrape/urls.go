// Package scrape turns fetched record pages into domain structs. Parsers
// work on raw markup; they never touch the network themselves. A Client
// pairs the parsers with a Fetcher and handles listing pagination.
package scrape

import (
	"fmt"
	"net/url"
)

// Page kinds, used as cache key prefixes and log fields.
const (
	KindBook     = "book"
	KindEditions = "editions"
	KindAuthor   = "author"
)

// BookURL returns the main page address for one record id.
func BookURL(base, id string) string {
	return fmt.Sprintf("%s/book/show/%s", base, id)
}

// EditionsURL returns one page of a work's editions listing.
func EditionsURL(base, workID string, page, perPage int) string {
	v := url.Values{}
	v.Set("page", fmt.Sprint(page))
	v.Set("per_page", fmt.Sprint(perPage))
	v.Set("utf8", "✓")
	return fmt.Sprintf("%s/work/editions/%s?%s", base, workID, v.Encode())
}

// AuthorBooksURL returns one page of an author's book listing, sorted by
// original publication year so discovery order is stable across runs.
func AuthorBooksURL(base, authorID string, page, perPage int) string {
	v := url.Values{}
	v.Set("page", fmt.Sprint(page))
	v.Set("per_page", fmt.Sprint(perPage))
	v.Set("sort", "original_publication_year")
	v.Set("utf8", "✓")
	return fmt.Sprintf("%s/author/list/%s?%s", base, authorID, v.Encode())
}
