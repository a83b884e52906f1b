package scrape

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/stacks/internal/book"
	"github.com/lepinkainen/stacks/internal/errors"
)

var (
	showIDRe = regexp.MustCompile(`/show/(\d+)`)
	formatRe = regexp.MustCompile(`(Paperback|Hardcover|Kindle Edition|ebook|Audio CD|Mass Market Paperback|Unknown Binding)`)
	pagesRe  = regexp.MustCompile(`([\d,]+)\s+pages`)
	ratingRe = regexp.MustCompile(`([\d.]+)\s*\(([\d,]+)\s+ratings?\)`)
)

// Pagination describes where a listing page sits within its page set.
type Pagination struct {
	Current int
	Total   int
}

// ParseEditions extracts the candidate rows from one page of a work's
// editions listing. An empty page parses to an empty slice, not an error;
// the resolver decides what that means.
func ParseEditions(workID string, content []byte) ([]book.CandidateEdition, Pagination, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, Pagination{}, errors.NewParseError(workID, "document")
	}

	var rows []book.CandidateEdition
	doc.Find("div.elementList.clearFix").Each(func(_ int, s *goquery.Selection) {
		if row, ok := parseEditionRow(s); ok {
			rows = append(rows, row)
		}
	})

	return rows, parsePagination(doc, `div[style*="text-align: right"]`), nil
}

func parseEditionRow(s *goquery.Selection) (book.CandidateEdition, bool) {
	var row book.CandidateEdition

	link := s.Find("a.bookTitle").First()
	href, _ := link.Attr("href")
	m := showIDRe.FindStringSubmatch(href)
	if m == nil {
		return row, false
	}
	row.GoodreadsID = m[1]
	row.Title = strings.TrimSpace(link.Text())
	if row.Title == "" {
		return row, false
	}

	s.Find("div.editionData > div.dataRow").Each(func(_ int, r *goquery.Selection) {
		text := strings.TrimSpace(r.Text())
		switch {
		case strings.HasPrefix(text, "Published"), strings.HasPrefix(text, "Expected publication"):
			row.PublishedDate = publishedDate(text)
		default:
			if m := formatRe.FindStringSubmatch(text); m != nil {
				row.Format = m[1]
			}
			if m := pagesRe.FindStringSubmatch(text); m != nil {
				row.Pages = parseCount(m[1])
			}
		}
	})

	s.Find("div.moreDetails div.dataRow").Each(func(_ int, r *goquery.Selection) {
		title := strings.TrimSpace(r.Find("div.dataTitle").Text())
		value := strings.TrimSpace(r.Find("div.dataValue").Text())
		switch {
		case strings.HasPrefix(title, "Edition language"):
			row.Language = value
		case strings.HasPrefix(title, "Average rating"):
			if m := ratingRe.FindStringSubmatch(value); m != nil {
				row.Rating, _ = strconv.ParseFloat(m[1], 64)
				row.RatingCount = parseCount(m[2])
			}
		}
	})

	return row, true
}

// publishedDate strips the leading verb and the trailing publisher from a
// listing date row ("Published March 2nd 2010 by Ace" stays "March 2nd 2010").
func publishedDate(text string) string {
	text = strings.TrimPrefix(text, "Expected publication")
	text = strings.TrimPrefix(text, "Published")
	if date, _, found := strings.Cut(text, " by "); found {
		text = date
	}
	return strings.TrimSpace(text)
}

func parseCount(text string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(text, ",", ""))
	return n
}

// parsePagination reads the numbered page links at the given selector.
// Listings short enough for a single page have no links at all.
func parsePagination(doc *goquery.Document, selector string) Pagination {
	p := Pagination{Current: 1, Total: 1}
	nav := doc.Find(selector).First()
	if current, err := strconv.Atoi(strings.TrimSpace(nav.Find("em.current").Text())); err == nil {
		p.Current = current
	}
	p.Total = p.Current
	nav.Find("a").Each(func(_ int, a *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > p.Total {
			p.Total = n
		}
	})
	return p
}
