package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address used for rate limiting and audit records.
//
// X-Forwarded-For and X-Real-IP are only honoured when trustProxy is set.
// trustedProxyCount is the number of proxies we operate, counted from the
// right of X-Forwarded-For; the entry just left of them is the client. Zero
// means one proxy.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	hops := strings.Split(xff, ",")

	proxies := trustedProxyCount
	if proxies <= 0 {
		proxies = 1
	}
	idx := len(hops) - proxies - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
