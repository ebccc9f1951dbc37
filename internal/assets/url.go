package assets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrRejectedURL marks a raw URL that can never produce an icon. Rejection
// is not an error condition for the pipeline: the job is skipped without any
// network call.
var ErrRejectedURL = errors.New("invalid URL format")

// NormalizeURL validates and canonicalizes a raw, user-supplied URL into a
// fetchable absolute URL. Catalog data is free text and frequently a bare
// placeholder, so empty strings, "#" markers and strings without a domain
// separator are rejected up front. A missing scheme defaults to https.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" || trimmed == "#" {
		return "", fmt.Errorf("placeholder url %q: %w", rawURL, ErrRejectedURL)
	}
	if !strings.Contains(trimmed, ".") {
		return "", fmt.Errorf("no domain separator in %q: %w", rawURL, ErrRejectedURL)
	}
	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("unparseable url %q: %w", rawURL, ErrRejectedURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}
