package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"full date", "June 17, 2025", "2025-06-17"},
		{"full date no comma", "January 1 1988", "1988-01-01"},
		{"ordinal day", "March 2nd 2010", "2010-03-02"},
		{"ordinal with comma", "August 21st, 2001", "2001-08-21"},
		{"month and year", "May 2013", "2013-05-01"},
		{"year only", "1998", "1998-01-01"},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"unparseable", "sometime soon", "sometime soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.text))
		})
	}
}
