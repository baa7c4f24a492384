package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ParseTrustedProxies parses IPs and CIDR ranges.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	parsed := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			if ip4 := ip.To4(); ip4 != nil {
				ip = ip4
			}
			bits := len(ip) * 8
			parsed = append(parsed, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, cidr, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		parsed = append(parsed, cidr)
	}
	return parsed, nil
}

func isTrusted(remoteAddr string, trusted []*net.IPNet) bool {
	ip := parseIP(remoteAddr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientAddr returns the address recorded for a connection. X-Forwarded-For
// is honored only when the peer is a trusted proxy.
func ClientAddr(r *http.Request, trusted []*net.IPNet) string {
	if isTrusted(r.RemoteAddr, trusted) {
		if ip := parseIP(firstValue(r.Header.Get("X-Forwarded-For"))); ip != nil {
			return ip.String()
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != nil {
			return ip.String()
		}
	}
	return r.RemoteAddr
}

// BaseURL returns scheme://host for the request as the client reached it.
func BaseURL(r *http.Request, trusted []*net.IPNet) string {
	host := r.Host
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if isTrusted(r.RemoteAddr, trusted) {
		if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
			host = h
		}
		if p := strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto"))); p == "http" || p == "https" {
			scheme = p
		}
	}
	return scheme + "://" + host
}

// WebSocketURL turns an http(s) base URL into the ws(s) endpoint URL.
func WebSocketURL(httpURL string) string {
	base := strings.TrimRight(strings.TrimSpace(httpURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base + "/ws"
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func parseIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(strings.Trim(addr, "[]"))
}
