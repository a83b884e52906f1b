package catalog

import (
	"regexp"
	"strings"
	"time"
)

var ordinalRe = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)

// dateLayouts covers the forms record pages and edition listings use:
// "June 17, 2025", "March 2nd 2010", "May 2013", "1998".
var dateLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"January 2006",
	"2006",
}

// NormalizeDate converts a page date string to ISO form (2006-01-02).
// Strings no layout matches pass through unchanged, so an odd page never
// loses information.
func NormalizeDate(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	cleaned := ordinalRe.ReplaceAllString(text, "$1")
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return text
}
