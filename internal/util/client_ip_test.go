package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPDirectPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:4455"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := ClientIP(r, false); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q, want direct peer", got)
	}
}

func TestClientIPTrustedProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:80"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if got := ClientIP(r, true); got != "198.51.100.1" {
		t.Fatalf("ClientIP = %q, want forwarded origin", got)
	}
}

func TestClientIPGarbageForwarded(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := ClientIP(r, true); got != "192.0.2.7" {
		t.Fatalf("ClientIP = %q, want fallback to peer", got)
	}
}
