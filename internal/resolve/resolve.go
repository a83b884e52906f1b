// Package resolve turns a raw external identifier into the record that
// should actually be ingested. The page behind an identifier is often the
// wrong edition of the work: wrong language, an audio format, or missing
// the attributes the catalog needs. The resolver checks the main record
// first and falls back to the work's editions listing to substitute a
// usable edition, or marks the record hidden when none exists.
package resolve

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/stacks/internal/book"
	stackerrors "github.com/lepinkainen/stacks/internal/errors"
	"github.com/lepinkainen/stacks/internal/langutil"
)

// Source supplies the two page kinds the resolver consumes. *scrape.Client
// satisfies it.
type Source interface {
	Book(ctx context.Context, goodreadsID string) (*book.Record, error)
	Editions(ctx context.Context, workID string) ([]book.CandidateEdition, error)
}

// acceptedFormats lists the editions worth keeping. Audio, leather-bound
// and other exotic bindings fall back to the editions listing.
var acceptedFormats = map[string]struct{}{
	"Kindle Edition":        {},
	"Paperback":             {},
	"Hardcover":             {},
	"Mass Market Paperback": {},
	"ebook":                 {},
}

// Resolver decides, per identifier, which edition of a work to ingest.
type Resolver struct {
	source Source
	lang   string
}

// New returns a resolver that accepts editions in targetLanguage.
func New(source Source, targetLanguage string) *Resolver {
	if targetLanguage == "" {
		targetLanguage = "English"
	}
	return &Resolver{source: source, lang: targetLanguage}
}

// validity holds the four independent checks a usable edition must pass.
// For candidates the same struct doubles as a "seen at least once" tracker
// that picks the most specific hidden reason when nothing survives.
type validity struct {
	pages       bool
	publication bool
	language    bool
	format      bool
}

func (v validity) ok() bool {
	return v.pages && v.publication && v.language && v.format
}

func (v validity) merge(other validity) validity {
	return validity{
		pages:       v.pages || other.pages,
		publication: v.publication || other.publication,
		language:    v.language || other.language,
		format:      v.format || other.format,
	}
}

// mainReason picks the hidden reason when the editions listing is empty,
// from the main record's own failed checks.
func (v validity) mainReason() book.HiddenReason {
	switch {
	case !v.pages:
		return book.HiddenPageCountUnknown
	case !v.language:
		return book.HiddenNoEnglishEditions
	case !v.format:
		return book.HiddenInvalidFormat
	default:
		return book.HiddenInvalidPublication
	}
}

// candidateReason picks the hidden reason when no candidate survived
// filtering, from what the listing as a whole never offered.
func (v validity) candidateReason() book.HiddenReason {
	switch {
	case !v.language:
		return book.HiddenNoEnglishEditions
	case !v.format:
		return book.HiddenInvalidFormat
	case !v.pages:
		return book.HiddenPageCountUnknown
	default:
		return book.HiddenInvalidPublication
	}
}

func (r *Resolver) checkRecord(rec *book.Record) validity {
	return r.check(rec.Pages, rec.PublishedDate, rec.Language, rec.Format)
}

func (r *Resolver) checkCandidate(c *book.CandidateEdition) validity {
	return r.check(c.Pages, c.PublishedDate, c.Language, c.Format)
}

func (r *Resolver) check(pages int, published, lang, format string) validity {
	_, formatOK := acceptedFormats[format]
	return validity{
		pages:       pages > 0,
		publication: published != "",
		language:    langutil.Matches(lang, r.lang),
		format:      formatOK,
	}
}

// Resolve maps goodreadsID to the record to ingest. It returns an error
// only when no work identifier is obtainable at all (fetch or parse
// failure); a work whose editions are all unusable resolves successfully
// as a hidden record. A substituted edition keeps its own identifier but
// carries the original work's WorkID so deduplication still holds.
func (r *Resolver) Resolve(ctx context.Context, goodreadsID string) (*book.Record, error) {
	rec, err := r.source.Book(ctx, goodreadsID)
	if err != nil {
		return nil, err
	}
	if rec.WorkID == "" {
		return nil, stackerrors.NewParseError(goodreadsID, "work id")
	}

	main := r.checkRecord(rec)
	if main.ok() {
		return rec, nil
	}

	slog.Debug("main edition unusable, checking editions",
		"goodreads_id", goodreadsID,
		"work_id", rec.WorkID,
		"title", rec.Title)

	candidates, err := r.source.Editions(ctx, rec.WorkID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		rec.Hide(main.mainReason())
		return rec, nil
	}

	var seen validity
	var chosen *book.CandidateEdition
	for i := range candidates {
		cv := r.checkCandidate(&candidates[i])
		if cv.ok() {
			chosen = &candidates[i]
			break
		}
		seen = seen.merge(cv)
	}

	if chosen == nil {
		rec.Hide(seen.candidateReason())
		return rec, nil
	}

	// Listing rows carry only coarse attributes, so the chosen edition is
	// fetched in full before it replaces the main record.
	final, err := r.source.Book(ctx, chosen.GoodreadsID)
	if err != nil {
		return nil, err
	}
	final.WorkID = rec.WorkID

	slog.Debug("switched to candidate edition",
		"goodreads_id", goodreadsID,
		"edition_id", final.GoodreadsID,
		"work_id", final.WorkID)

	return final, nil
}
