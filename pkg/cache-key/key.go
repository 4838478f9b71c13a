package cachekey

import (
	"fmt"
	"net/http"
	"strings"
)

var ErrMethodNotSupported = fmt.Errorf("Method not supported")

const methodSeparator = ":"

// Keyer turns requests into cache keys and back.
// The key is the request method plus the normalized request URI,
// so two requests for the same resource always share an entry.
type Keyer struct{}

func NewKeyer() Keyer {
	return Keyer{}
}

// ForRequest returns the cache key for a request.
// E.g. `GET:/static/logo.png`.
func (k Keyer) ForRequest(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// ForPath returns the cache key for a plain GET of the given path.
func (k Keyer) ForPath(path string) string {
	return http.MethodGet + methodSeparator + path
}

// RequestFromKey generates a caching-wise equal request to the request
// that resulted in the provided key.
// It returns an error if the request cannot for some reason be deducted.
// Only read methods are supported, since only those are ever stored.
func (k Keyer) RequestFromKey(key string) (*http.Request, error) {
	method, uri, found := strings.Cut(key, methodSeparator)
	if !found {
		return nil, fmt.Errorf("Malformed key: %s", key)
	}
	if method != http.MethodGet && method != http.MethodHead {
		return nil, ErrMethodNotSupported
	}
	return http.NewRequest(method, uri, nil)
}
