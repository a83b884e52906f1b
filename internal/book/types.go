// Package book holds the domain types shared by the scraping, resolution
// and ingestion layers. Records are plain structs with explicit fields;
// parsers either fill them in or fail, they never hand back loose maps.
package book

// PublishState tells whether a record's publication date is in the past
// or the title is still forthcoming.
type PublishState string

const (
	StatePublished PublishState = "published"
	StateUpcoming  PublishState = "upcoming"
)

// HiddenReason explains why a record is suppressed from normal listings.
// The empty string means the record is visible.
type HiddenReason string

// Reasons assigned by the edition resolver when no usable edition exists.
const (
	HiddenPageCountUnknown   HiddenReason = "page_count_unknown"
	HiddenNoEnglishEditions  HiddenReason = "no_english_editions"
	HiddenInvalidFormat      HiddenReason = "invalid_format"
	HiddenInvalidPublication HiddenReason = "invalid_publication"
)

// Reasons assigned by the exclusion rule engine.
const (
	HiddenTitlePatternMatch  HiddenReason = "title_pattern_match"
	HiddenTitleNumberPattern HiddenReason = "title_number_pattern"
	HiddenExceedsPageLength  HiddenReason = "exceeds_page_length"
	HiddenLowVoteCount       HiddenReason = "low_vote_count"
	HiddenNoDescription      HiddenReason = "no_description"
	HiddenExcludedGenre      HiddenReason = "excluded_genre"
)

// AuthorRef is one contributor parsed from a record page. GoodreadsID is
// the author's own external id, the natural key used for create-or-reuse.
type AuthorRef struct {
	GoodreadsID string
	Name        string
	Role        string
}

// SeriesRef is one series membership parsed from a record page. Order is
// the position string as shown on the page ("1", "2.5", "" when unnumbered).
type SeriesRef struct {
	GoodreadsID string
	Name        string
	Order       string
}

// Record is the fully parsed form of one book page. The resolver returns
// exactly one Record per raw identifier; WorkID is the deduplication key
// and may differ from the GoodreadsID the caller started from when a
// better edition was substituted.
type Record struct {
	GoodreadsID string
	WorkID      string
	Title       string
	Description string

	Language string
	Format   string
	Pages    int
	ISBN     string

	Rating      float64
	RatingCount int

	// PublishedDate keeps the page's own date text ("June 17, 2025");
	// the catalog layer normalizes it on insert.
	PublishedDate string
	PublishState  PublishState

	ImageURL string

	Authors []AuthorRef
	Genres  []string
	Series  []SeriesRef

	Hidden       bool
	HiddenReason HiddenReason
}

// Hide marks the record hidden with the given reason. The first reason
// sticks; later calls on an already hidden record are no-ops so resolver
// verdicts are never overwritten by the rule engine.
func (r *Record) Hide(reason HiddenReason) {
	if r.Hidden {
		return
	}
	r.Hidden = true
	r.HiddenReason = reason
}

// Upcoming reports whether the record is a forthcoming publication.
func (r *Record) Upcoming() bool {
	return r.PublishState == StateUpcoming
}

// CandidateEdition is one row of a work's editions listing. Listing pages
// carry only coarse attributes, so a chosen candidate is always re-fetched
// as a full Record before ingestion.
type CandidateEdition struct {
	GoodreadsID   string
	Title         string
	Language      string
	Format        string
	Pages         int
	PublishedDate string
	Rating        float64
	RatingCount   int
}
