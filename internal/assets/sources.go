package assets

import (
	"fmt"
	"net/url"
)

// Candidate source names, in fallback priority order. Aggregator services
// sit ahead of direct favicon probes: they respond for hosts that never
// shipped a favicon and normalize odd formats to PNG.
const (
	SourceGoogleS2   = "google-s2"
	SourceFaviconICO = "site-favicon-ico"
	SourceFaviconPNG = "site-favicon-png"
	SourceIconHorse  = "icon-horse"
	SourceGstaticV2  = "gstatic-favicon-v2"
)

// BuildCandidates derives the ordered candidate list for a normalized URL.
// The sequence is deterministic: same input, same output, tie-break strictly
// by position.
func BuildCandidates(normalizedURL string) ([]Candidate, error) {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("parse normalized url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("no hostname in %q", normalizedURL)
	}
	base := u.Scheme + "://" + u.Host

	return []Candidate{
		{Source: SourceGoogleS2, URL: "https://www.google.com/s2/favicons?domain=" + host + "&sz=128"},
		{Source: SourceFaviconICO, URL: base + "/favicon.ico"},
		{Source: SourceFaviconPNG, URL: base + "/favicon.png"},
		{Source: SourceIconHorse, URL: "https://icon.horse/icon/" + host},
		{Source: SourceGstaticV2, URL: "https://t2.gstatic.com/faviconV2?client=SOCIAL&type=FAVICON&fallback_opts=TYPE,SIZE,URL&url=" + host + "&size=128"},
	}, nil
}
