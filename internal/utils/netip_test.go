package utils

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "203.0.113.9:5123", want: "203.0.113.9"},
		{name: "ignores headers without trust", remote: "10.0.0.2:80", headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "10.0.0.2"},
		{name: "forwarded for", remote: "10.0.0.2:80", headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, trustProxy: true, want: "198.51.100.1"},
		{name: "cloudflare wins", remote: "10.0.0.2:80", headers: map[string]string{"CF-Connecting-IP": "198.51.100.7", "X-Real-IP": "198.51.100.8"}, trustProxy: true, want: "198.51.100.7"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.4 ", "garbage", ""})
	if m.IsEmpty() {
		t.Fatal("matcher should not be empty")
	}

	for ip, want := range map[string]bool{
		"10.20.30.40":        true,
		"192.168.1.4":        true,
		"::ffff:192.168.1.4": true,
		"192.168.1.5":        false,
		"not-an-ip":          false,
	} {
		if got := m.Allow(ip); got != want {
			t.Errorf("Allow(%q) = %v, want %v", ip, got, want)
		}
	}

	if !NewIPMatcher(nil).IsEmpty() {
		t.Error("nil list should give an empty matcher")
	}
}

func TestIsPublicAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"93.184.216.34":      true,
		"2606:2800:220:1::1": true,
		"127.0.0.1":          false,
		"10.1.2.3":           false,
		"172.16.0.1":         false,
		"192.168.0.10":       false,
		"169.254.169.254":    false,
		"0.0.0.0":            false,
		"100.64.0.1":         false,
		"224.0.0.1":          false,
		"::1":                false,
		"fe80::1":            false,
		"fd00::1":            false,
		"::ffff:127.0.0.1":   false,
	} {
		if got := IsPublicAddr(netip.MustParseAddr(addr)); got != want {
			t.Errorf("IsPublicAddr(%s) = %v, want %v", addr, got, want)
		}
	}
}
