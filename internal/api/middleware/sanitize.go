package middleware

import (
	"net/http"
	"strings"

	"github.com/flowguard/flowguard/internal/util"
)

const maxLoggedValue = 200

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-api-token":         {},
	"x-access-token":      {},
	"x-auth-token":        {},
	"x-api-secret":        {},
	"x-forwarded-for":     {},
}

// SanitizeHeaders copies h for logging with credentials redacted and every
// other value sanitized and clipped.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		sanitizedVals := make([]string, 0, len(vals))
		for _, v := range vals {
			sanitizedVals = append(sanitizedVals, util.SanitizeAndClip(v, maxLoggedValue))
		}
		out[k] = sanitizedVals
	}
	return out
}

// SanitizePath drops the query string and sanitizes the rest for logging.
func SanitizePath(p string) string {
	if i := strings.Index(p, "?"); i != -1 {
		p = p[:i]
	}
	return util.SanitizeAndClip(p, maxLoggedValue)
}
