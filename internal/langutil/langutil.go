// Package langutil normalizes the language labels found on scraped pages.
// Record pages carry BCP 47 tags ("en", "eng", "en-US") in their embedded
// JSON while edition listings show display names ("English"); both forms
// must compare equal against the configured target language.
package langutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var titler = cases.Title(language.English)

// Canonical maps a language label to the English display name of its base
// language. Labels that are not parseable tags are title-cased as-is.
func Canonical(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if tag, err := language.Parse(label); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			if name := display.English.Languages().Name(language.Make(base.String())); name != "" {
				return name
			}
		}
	}
	return titler.String(label)
}

// Matches reports whether a page label names the target language. An empty
// label never matches.
func Matches(label, target string) bool {
	if strings.TrimSpace(label) == "" {
		return false
	}
	return strings.EqualFold(Canonical(label), Canonical(target))
}
