package auth

import (
	"net/url"
	"strings"
)

// SafeRedirect returns next when it is a same-origin relative path and
// fallback otherwise. Scheme-relative ("//host"), backslash tricks and
// absolute URLs are all rejected.
func SafeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return next
}
