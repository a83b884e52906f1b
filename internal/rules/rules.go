// Package rules decides which resolved records are kept out of normal
// listings. Classification is a pure function over the record; the rule
// order is fixed and the first match wins.
package rules

import (
	"regexp"
	"strings"

	"github.com/lepinkainen/stacks/internal/book"
)

// Config holds the tunable thresholds. Title and genre rules are fixed.
type Config struct {
	MaxPages           int
	MinVotes           int
	RequireDescription bool
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxPages:           1800,
		MinVotes:           100,
		RequireDescription: true,
	}
}

// titleSubstrings mark multi-volume products: collections, box sets and
// samplers that would pollute the catalog with non-works. Compared
// case-insensitively.
var titleSubstrings = []string{
	" / ",
	"boxed",
	"omnibus",
	"sampler",
	" bundle",
	"novels",
	"box set",
	"complete collection",
	"trilogy",
	"anthology",
	"books set",
}

// titleNumberPatterns catch numeric multi-book ranges the substrings miss
// ("Series 1-3", "Books 1-7", "Volume 1-4"). Applied to the lowercased title.
var titleNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`series.*\d+\s*-\s*\d+`),
	regexp.MustCompile(`#\d+\s*-\s*\d+`),
	regexp.MustCompile(`novellas?\s*\d+\s*-\s*\d+`),
	regexp.MustCompile(`set.*\d+\s*-\s*\d+`),
	regexp.MustCompile(`books?\s*\d+`),
	regexp.MustCompile(`volume[s\s]+\d+\s*-\s*\d+`),
}

var disallowedGenres = map[string]struct{}{
	"Graphic Novel":         {},
	"Comics":                {},
	"Graphic Novels":        {},
	"Graphic Novels Comics": {},
	"Manga":                 {},
	"Comic Book":            {},
	"Anime":                 {},
	"Cookbooks":             {},
	"Colouring":             {},
	"Colouring Books":       {},
	"Picture Books":         {},
}

// Engine evaluates the exclusion rules against resolved records.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine with the given thresholds.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Classify returns the reason a record should be hidden, or the empty
// reason when it stays visible. Title and genre rules always apply; the
// page, vote and description thresholds are skipped for upcoming titles
// because those numbers are not meaningful before publication. Records
// the resolver already hid never reach this stage.
func (e *Engine) Classify(rec *book.Record) book.HiddenReason {
	title := strings.ToLower(rec.Title)

	for _, sub := range titleSubstrings {
		if strings.Contains(title, sub) {
			return book.HiddenTitlePatternMatch
		}
	}

	for _, re := range titleNumberPatterns {
		if re.MatchString(title) {
			return book.HiddenTitleNumberPattern
		}
	}

	if !rec.Upcoming() {
		if e.cfg.MaxPages > 0 && rec.Pages > e.cfg.MaxPages {
			return book.HiddenExceedsPageLength
		}
		if e.cfg.MinVotes > 0 && rec.RatingCount < e.cfg.MinVotes {
			return book.HiddenLowVoteCount
		}
		if e.cfg.RequireDescription && strings.TrimSpace(rec.Description) == "" {
			return book.HiddenNoDescription
		}
	}

	for _, genre := range rec.Genres {
		if _, bad := disallowedGenres[genre]; bad {
			return book.HiddenExcludedGenre
		}
	}

	return ""
}
