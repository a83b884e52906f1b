package scrape

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/stacks/internal/book"
	"github.com/lepinkainen/stacks/internal/errors"
	"github.com/lepinkainen/stacks/internal/langutil"
)

var (
	authorShowRe = regexp.MustCompile(`/author/show/(\d+)`)
	seriesShowRe = regexp.MustCompile(`/series/(\d+)`)
)

// HasDynamicPayload reports whether the markup carries the embedded JSON
// state blob the parser reads description, work id and genres from. The
// plain markup served to non-rendering clients sometimes omits it.
func HasDynamicPayload(content []byte) bool {
	return bytes.Contains(content, []byte("__NEXT_DATA__"))
}

// nextData is the slice of the page's embedded state the parser needs:
// a flat map from entity key to entity fields.
type nextData struct {
	Props struct {
		PageProps struct {
			ApolloState map[string]map[string]any `json:"apolloState"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ldBook is the machine-readable summary block on a record page.
type ldBook struct {
	BookFormat      string `json:"bookFormat"`
	InLanguage      string `json:"inLanguage"`
	NumberOfPages   int    `json:"numberOfPages"`
	ISBN            string `json:"isbn"`
	Image           string `json:"image"`
	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
}

// ParseBook extracts the full record from one main page. The returned
// record always carries a title and a work id; either one missing is a
// ParseError because nothing downstream can proceed without them.
func ParseBook(id string, content []byte) (*book.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.NewParseError(id, "document")
	}

	rec := &book.Record{GoodreadsID: id}

	rec.Title = parseTitle(doc)
	if rec.Title == "" {
		return nil, errors.NewParseError(id, "title")
	}

	apollo := apolloState(doc)
	entry := bookEntry(apollo)

	rec.WorkID = workID(apollo)
	if rec.WorkID == "" {
		return nil, errors.NewParseError(id, "work id")
	}

	if desc, ok := entry["description"].(string); ok {
		rec.Description = strings.TrimSpace(desc)
	}

	ld, hasLD := ldJSON(doc)
	if hasLD {
		rec.Format = ld.BookFormat
		rec.Language = langutil.Canonical(ld.InLanguage)
		rec.Pages = ld.NumberOfPages
		rec.ISBN = ld.ISBN
		rec.Rating = ld.AggregateRating.RatingValue
		rec.RatingCount = ld.AggregateRating.RatingCount
	}

	rec.PublishedDate, rec.PublishState = parsePublication(doc)
	rec.Authors = parseContributors(doc)
	rec.Genres = parseGenres(entry)
	rec.Series = parseSeries(doc, apollo, entry)
	rec.ImageURL = parseCover(doc, entry, ld)

	return rec, nil
}

func apolloState(doc *goquery.Document) map[string]map[string]any {
	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return nil
	}
	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return data.Props.PageProps.ApolloState
}

// bookEntry resolves the root query's reference to this page's own record
// entry. Scanning from the root keeps multi-record state blobs unambiguous.
func bookEntry(apollo map[string]map[string]any) map[string]any {
	root, ok := apollo["ROOT_QUERY"]
	if !ok {
		return nil
	}
	for key, value := range root {
		if !strings.Contains(key, "getBookByLegacyId") {
			continue
		}
		ref, ok := value.(map[string]any)
		if !ok {
			continue
		}
		refKey, _ := ref["__ref"].(string)
		if entry, ok := apollo[refKey]; ok {
			return entry
		}
	}
	return nil
}

func parseTitle(doc *goquery.Document) string {
	h1 := doc.Find("h1[data-testid=bookTitle]").First()
	if label, ok := h1.Attr("aria-label"); ok {
		if name, found := strings.CutPrefix(label, "Book title: "); found {
			return strings.TrimSpace(name)
		}
	}
	return strings.TrimSpace(h1.Text())
}

// workID finds the entry that links to the work's editions listing and
// takes the numeric id from that address.
func workID(apollo map[string]map[string]any) string {
	for _, value := range apollo {
		editions, ok := value["editions"].(map[string]any)
		if !ok {
			continue
		}
		webURL, _ := editions["webUrl"].(string)
		if id := idFromURL(webURL); id != "" {
			return id
		}
	}
	return ""
}

// idFromURL pulls the numeric id out of an entity address whose last path
// segment is "<id>-<slug>".
func idFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	id, _, _ := strings.Cut(last, "-")
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}

func ldJSON(doc *goquery.Document) (ldBook, bool) {
	var ld ldBook
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw == "" {
		return ld, false
	}
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return ld, false
	}
	return ld, true
}

// parsePublication reads the publication line. "Expected publication"
// marks a forthcoming title; everything else counts as published.
func parsePublication(doc *goquery.Document) (string, book.PublishState) {
	text := strings.TrimSpace(doc.Find("p[data-testid=publicationInfo]").First().Text())
	switch {
	case text == "":
		return "", book.StatePublished
	case strings.HasPrefix(text, "Expected publication"):
		return strings.TrimSpace(strings.TrimPrefix(text, "Expected publication")), book.StateUpcoming
	case strings.HasPrefix(text, "First published"):
		return strings.TrimSpace(strings.TrimPrefix(text, "First published")), book.StatePublished
	case strings.HasPrefix(text, "Published"):
		return strings.TrimSpace(strings.TrimPrefix(text, "Published")), book.StatePublished
	}
	return text, book.StatePublished
}

func parseContributors(doc *goquery.Document) []book.AuthorRef {
	var refs []book.AuthorRef
	seen := make(map[string]bool)
	doc.Find("a.ContributorLink").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := authorShowRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if seen[id] {
			return
		}
		name := strings.TrimSpace(s.Find("span.ContributorLink__name").Text())
		if name == "" {
			return
		}
		role := strings.TrimSpace(s.Find("span.ContributorLink__role").Text())
		role = strings.TrimSpace(strings.Trim(role, "(),"))
		seen[id] = true
		refs = append(refs, book.AuthorRef{GoodreadsID: id, Name: name, Role: role})
	})
	return refs
}

func parseGenres(entry map[string]any) []string {
	raw, ok := entry["bookGenres"].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		genre, ok := m["genre"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := genre["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseSeries prefers the visible series heading; pages that render the
// heading client-side only still carry the memberships in the state blob.
func parseSeries(doc *goquery.Document, apollo map[string]map[string]any, entry map[string]any) []book.SeriesRef {
	if refs := seriesFromMarkup(doc); len(refs) > 0 {
		return refs
	}
	return seriesFromState(apollo, entry)
}

func seriesFromMarkup(doc *goquery.Document) []book.SeriesRef {
	var refs []book.SeriesRef
	seen := make(map[string]bool)
	doc.Find(`h3.Text__title3[aria-label*='series'] a`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := seriesShowRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if seen[id] {
			return
		}
		name, order, _ := strings.Cut(strings.TrimSpace(s.Text()), "#")
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		seen[id] = true
		refs = append(refs, book.SeriesRef{GoodreadsID: id, Name: name, Order: strings.TrimSpace(order)})
	})
	return refs
}

func seriesFromState(apollo map[string]map[string]any, entry map[string]any) []book.SeriesRef {
	positions := seriesPositions(entry)
	var refs []book.SeriesRef
	for key, value := range apollo {
		if typename, _ := value["__typename"].(string); typename != "Series" {
			continue
		}
		webURL, _ := value["webUrl"].(string)
		id := idFromURL(webURL)
		title, _ := value["title"].(string)
		if id == "" || title == "" {
			continue
		}
		refs = append(refs, book.SeriesRef{GoodreadsID: id, Name: title, Order: positions[key]})
	}
	// state map order is not stable, the listing should be
	sort.Slice(refs, func(i, j int) bool { return refs[i].GoodreadsID < refs[j].GoodreadsID })
	return refs
}

// seriesPositions maps state keys of series entries to the position this
// record holds in them. Membership rows have carried the position under a
// few different field names over time.
func seriesPositions(entry map[string]any) map[string]string {
	out := make(map[string]string)
	rows, ok := entry["bookSeries"].([]any)
	if !ok {
		return out
	}
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		series, ok := m["series"].(map[string]any)
		if !ok {
			continue
		}
		ref, _ := series["__ref"].(string)
		if ref == "" {
			continue
		}
		if pos := positionField(m); pos != "" {
			out[ref] = pos
		}
	}
	return out
}

func positionField(m map[string]any) string {
	for _, field := range []string{"userPosition", "bookPosition", "position", "primaryPosition"} {
		switch v := m[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if data, ok := m["userSeriesData"].(map[string]any); ok {
		if pos, ok := data["bookPosition"].(string); ok {
			return pos
		}
	}
	return ""
}

// parseCover tries the record entry first, then the page art, then the
// metadata blocks. Any of them may be absent.
func parseCover(doc *goquery.Document, entry map[string]any, ld ldBook) string {
	if u, ok := entry["imageUrl"].(string); ok && u != "" {
		return u
	}
	if u, ok := doc.Find("img.ResponsiveImage").First().Attr("src"); ok && u != "" {
		return u
	}
	if ld.Image != "" {
		return ld.Image
	}
	if u, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && u != "" {
		return u
	}
	return ""
}
