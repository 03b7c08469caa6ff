// Package urlnorm computes canonical URLs and extracts domains, used by
// the indexing pipeline (chunk/BM25 metadata) and the search orchestrator
// (RRF deduplication key).
package urlnorm

import (
	"net/url"
	"strings"
)

// trackingParams are the common tracking query parameters stripped during
// canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"msclkid":      true,
	"ref":          true,
	"mc_cid":       true,
	"mc_eid":       true,
}

// Canonical lowercases the host, strips the fragment, and removes tracking
// query parameters from raw. If raw does not parse as a URL, it is returned
// unchanged.
func Canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingParams[strings.ToLower(key)] {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// Domain extracts the lowercase host (without port) from raw. Returns the
// empty string if raw does not parse as a URL.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return host
}
