package crawler

import (
	"net/url"
	"strings"
)

// AllowedTLDs lists the host suffixes the crawler will visit.
var AllowedTLDs = []string{".edu", ".org", ".gov"}

var skipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".mp4", ".mp3",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".zip", ".tar", ".gz",
}

var authSegments = map[string]struct{}{
	"login":    {},
	"signin":   {},
	"auth":     {},
	"logout":   {},
	"signup":   {},
	"register": {},
	"account":  {},
	"sso":      {},
}

// InScope reports whether the URL's host ends with an allowed top-level domain.
func InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, tld := range AllowedTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

// ShouldSkip reports whether the URL is never worth fetching: a non-HTTP
// scheme, a binary or document extension, or an authentication path.
func ShouldSkip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	lowerPath := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return true
		}
	}
	for _, segment := range strings.Split(lowerPath, "/") {
		if _, ok := authSegments[segment]; ok {
			return true
		}
	}
	return false
}
