package egress

import "math/rand"

// HeaderProfile is a coherent set of browser request headers. Profiles are
// rotated as complete sets; mixing a Chrome User-Agent with Firefox Accept
// values is an easy tell.
type HeaderProfile struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	AcceptEncoding string
	SecFetchSite   string
	SecFetchMode   string
	SecFetchUser   string
	SecFetchDest   string
}

var browserProfiles = []HeaderProfile{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
		AcceptLanguage: "en-US,en;q=0.9",
		AcceptEncoding: "gzip, deflate, br",
		SecFetchSite:   "none",
		SecFetchMode:   "navigate",
		SecFetchUser:   "?1",
		SecFetchDest:   "document",
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/109.0",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.5",
		AcceptEncoding: "gzip, deflate, br",
		SecFetchSite:   "none",
		SecFetchMode:   "navigate",
		SecFetchUser:   "?1",
		SecFetchDest:   "document",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.3 Safari/605.1.15",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		AcceptEncoding: "gzip, deflate, br",
		SecFetchSite:   "none",
		SecFetchMode:   "navigate",
		SecFetchUser:   "?1",
		SecFetchDest:   "document",
	},
}

// RandomProfile picks one complete browser profile.
func RandomProfile() HeaderProfile {
	return browserProfiles[rand.Intn(len(browserProfiles))]
}
