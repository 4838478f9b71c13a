package cachekey

import (
	"net/http"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	keyer := NewKeyer()
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?tab=1", nil)
	key := keyer.ForRequest(r)
	if key != "GET:/page?tab=1" {
		t.Fatalf("Key is %s", key)
	}
	req, err := keyer.RequestFromKey(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if uri := req.URL.RequestURI(); uri != "/page?tab=1" {
		t.Fatalf("Created request uri for key %s is %s", key, uri)
	}
}

func TestForPathMatchesForRequest(t *testing.T) {
	keyer := NewKeyer()
	r, _ := http.NewRequest("GET", "http://dev.localhost/static/logo.png", nil)
	if keyer.ForRequest(r) != keyer.ForPath("/static/logo.png") {
		t.Fatal("Path key and request key differ for the same resource")
	}
}

func TestRequestFromKeyRejectsUnsafeMethods(t *testing.T) {
	keyer := NewKeyer()
	if _, err := keyer.RequestFromKey("POST:/api/meals"); err != ErrMethodNotSupported {
		t.Fatalf("Error is %v", err)
	}
}
