package security

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates the Origin header of WebSocket upgrades. Native
// clients send no Origin and are always accepted; browser origins must match
// the allow list when one is configured.
type OriginChecker struct {
	allowed []string
}

// NewOriginChecker creates a checker for the given origins. Entries may use a
// "*.example.com" wildcard.
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	allowed := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, strings.TrimRight(o, "/"))
		}
	}
	return &OriginChecker{allowed: allowed}
}

// CheckOrigin reports whether the request origin is acceptable.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if isLocalhost(u.Hostname()) {
		return true
	}
	if len(oc.allowed) == 0 {
		return true
	}
	for _, allowed := range oc.allowed {
		if allowed == "*" || matchOrigin(u, allowed) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}

// matchOrigin matches an exact origin or a "*.domain" wildcard.
func matchOrigin(origin *url.URL, allowed string) bool {
	if strings.EqualFold(origin.Scheme+"://"+origin.Host, allowed) {
		return true
	}
	if domain, ok := strings.CutPrefix(allowed, "*."); ok {
		host := origin.Hostname()
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
	return false
}
