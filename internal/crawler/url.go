package crawler

import (
	"net/url"
	"strings"
)

// Canonicalize produces the identity used for deduplication.
// It lowercases the host, drops the fragment, and strips trailing slashes
// from the path (an empty path becomes "/"). Scheme, port, path params and
// query are preserved verbatim. Unparseable input only loses its fragment.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '#'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawPath != "" {
		// Trim the escaped form so an encoded %2F is not mistaken for a slash.
		raw := trimSlashes(u.RawPath)
		if p, err := url.PathUnescape(raw); err == nil {
			u.RawPath = raw
			u.Path = p
		} else {
			u.RawPath = ""
			u.Path = trimSlashes(u.Path)
		}
	} else {
		u.Path = trimSlashes(u.Path)
	}
	// Opaque URLs (mailto:, javascript:) have no path to normalize.
	if u.Opaque != "" {
		u.Path = ""
	}
	return u.String()
}

func trimSlashes(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// ResolveReference resolves ref against base. An unparseable ref yields
// the ref unchanged; an unparseable base yields ref as-is.
func ResolveReference(base, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

// Domain returns the lowercased host (including port) of rawURL.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// EnsureScheme prefixes https:// when rawURL has no http(s) scheme.
func EnsureScheme(rawURL string) string {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return rawURL
	}
	return "https://" + rawURL
}
