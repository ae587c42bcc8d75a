package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		proxyCount int
		want       string
	}{
		{name: "direct", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "headers ignored without trust", remoteAddr: "192.0.2.1:5555", xff: "203.0.113.9", want: "192.0.2.1"},
		{name: "single proxy", remoteAddr: "10.0.0.1:80", xff: "203.0.113.9, 10.0.0.2", trustProxy: true, want: "203.0.113.9"},
		{name: "two proxies", remoteAddr: "10.0.0.1:80", xff: "198.51.100.1, 203.0.113.9, 10.0.0.3, 10.0.0.2", trustProxy: true, proxyCount: 2, want: "203.0.113.9"},
		{name: "short chain falls back to leftmost", remoteAddr: "10.0.0.1:80", xff: "203.0.113.9", trustProxy: true, proxyCount: 3, want: "203.0.113.9"},
		{name: "garbage xff uses x-real-ip", remoteAddr: "10.0.0.1:80", xff: "nonsense", xRealIP: "203.0.113.5", trustProxy: true, want: "203.0.113.5"},
		{name: "garbage everywhere", remoteAddr: "10.0.0.1:80", xff: "nonsense", xRealIP: "bad", trustProxy: true, want: "10.0.0.1"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/oauth/authorize", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(r, tt.trustProxy, tt.proxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
