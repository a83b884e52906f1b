package scrape

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/stacks/internal/errors"
)

var publishedYearRe = regexp.MustCompile(`published\s+(\d{4})`)

// AuthorBook is one row of an author's book listing. Published carries
// just the year shown in the row's summary line, when present.
type AuthorBook struct {
	GoodreadsID string
	Title       string
	Published   string
}

// AuthorListing is one parsed page of an author's book list.
type AuthorListing struct {
	Name       string
	Books      []AuthorBook
	Pagination Pagination
}

// ParseAuthorBooks extracts the rows from one page of an author's book
// listing. The author name is required; a page without it is not a
// listing page at all.
func ParseAuthorBooks(authorID string, content []byte) (*AuthorListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.NewParseError(authorID, "document")
	}

	listing := &AuthorListing{
		Name: strings.TrimSpace(doc.Find("a.authorName").First().Text()),
	}
	if listing.Name == "" {
		return nil, errors.NewParseError(authorID, "author name")
	}

	doc.Find(`tr[itemtype="http://schema.org/Book"]`).Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.bookTitle").First()
		href, _ := link.Attr("href")
		m := showIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		title := strings.TrimSpace(link.Find("span[itemprop=name]").Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		if title == "" {
			return
		}
		row := AuthorBook{GoodreadsID: m[1], Title: title}
		if y := publishedYearRe.FindStringSubmatch(s.Find("span.greyText").Text()); y != nil {
			row.Published = y[1]
		}
		listing.Books = append(listing.Books, row)
	})

	listing.Pagination = parsePagination(doc, `div[style*="float: right"]`)
	return listing, nil
}
