package crisis

import (
	"net/url"
	"strings"
)

// Match tests rawURL against the allowlist and returns the first matching
// resource, or nil when no resource matches. Matching is pure and runs in
// list order: exact domain, then wildcard pattern, then aliases, per
// resource. Hostnames are compared case-insensitively with any leading
// "www." stripped, so a wildcard never matches an unrelated suffix like
// "fake988lifeline.org" against "988lifeline.org".
func Match(rawURL string, list *Allowlist) *Resource {
	if list == nil || len(list.Resources) == 0 {
		return nil
	}

	host := normalizeHost(rawURL)
	if host == "" {
		return nil
	}

	for i := range list.Resources {
		r := &list.Resources[i]

		if host == normalizeDomain(r.Domain) {
			return r
		}

		if r.WildcardPattern != "" {
			base := normalizeDomain(strings.TrimPrefix(r.WildcardPattern, "*."))
			if host == base || strings.HasSuffix(host, "."+base) {
				return r
			}
		}

		for _, alias := range r.Aliases {
			if host == normalizeDomain(alias) {
				return r
			}
		}
	}

	return nil
}

// normalizeHost extracts a comparable hostname from a raw URL. Malformed
// URLs fall back to treating the raw string as a bare hostname.
func normalizeHost(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		parsed, err = url.Parse("https://" + raw)
	}

	host := raw
	if err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
	}

	return normalizeDomain(host)
}

func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}
