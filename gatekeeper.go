package cachegate

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cache-gate/cache-gate/cache"
	cachekey "github.com/cache-gate/cache-gate/pkg/cache-key"
	gatestatus "github.com/cache-gate/cache-gate/pkg/gate-status"
	serializer "github.com/cache-gate/cache-gate/pkg/response-serializer"

	"github.com/rs/zerolog"
)

type Config struct {
	// Storage for cache entries.
	// An in-memory cache is used if nil.
	Cache cache.CacheProvider
	// URL of the application's own origin.
	// Requests to any other origin are never intercepted.
	Origin url.URL
	// Version identifier baked in at build time.
	// Bumping it invalidates all previously cached entries on activation.
	Version string
	// Caching rules. The default policy is used if zero.
	Policy *Policy
	// Transport used for network fetches.
	// http.DefaultTransport is used if nil.
	Base http.RoundTripper
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Interval for the background refresh of stored entries.
	// Zero disables refreshing.
	RefreshInterval time.Duration
}

// Gatekeeper intercepts outgoing requests and serves them from network,
// cache, or the configured fallback document.
// It implements http.RoundTripper.
type Gatekeeper struct {
	cache           cache.CacheProvider
	keyer           cachekey.Keyer
	origin          url.URL
	policy          Policy
	version         string
	generation      string
	base            http.RoundTripper
	log             zerolog.Logger
	refreshInterval time.Duration

	mu    sync.Mutex
	phase Phase
}

const generationPrefix = "gate-static-"

// New initializes the gatekeeper for the given version.
// The cache generation name is derived from the version identifier;
// nothing is fetched or deleted until Install and Activate run.
func New(config Config) (*Gatekeeper, error) {
	if config.Version == "" {
		return nil, fmt.Errorf("version identifier is required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("generation", generationPrefix+config.Version).
		Logger()

	policy := DefaultPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}

	store := config.Cache
	if store == nil {
		store = cache.NewMemCache()
	}

	base := config.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return &Gatekeeper{
		cache:           store,
		keyer:           cachekey.NewKeyer(),
		origin:          config.Origin,
		policy:          policy,
		version:         config.Version,
		generation:      generationPrefix + config.Version,
		base:            base,
		log:             logger,
		refreshInterval: config.RefreshInterval,
		phase:           PhaseAbsent,
	}, nil
}

// Generation returns the name of the cache generation this gatekeeper
// reads from and writes to.
func (g *Gatekeeper) Generation() string {
	return g.generation
}

// decide applies the bypass filters in order.
// It returns the forward reason for requests the gate must not touch,
// and an empty reason for requests it intercepts.
func (g *Gatekeeper) decide(r *http.Request) gatestatus.FwdReason {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return gatestatus.FwdReasonMethod
	}
	if !g.sameOrigin(r.URL) {
		return gatestatus.FwdReasonOrigin
	}
	switch g.policy.Classify(r.URL.Path) {
	case ClassExcluded:
		return gatestatus.FwdReasonExcluded
	case ClassOther:
		return gatestatus.FwdReasonExtension
	}
	return ""
}

// sameOrigin reports whether the URL targets the application's own origin.
// Relative URLs (no host) count as same-origin.
func (g *Gatekeeper) sameOrigin(u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	if !strings.EqualFold(u.Host, g.origin.Host) {
		return false
	}
	return u.Scheme == "" || g.origin.Scheme == "" || u.Scheme == g.origin.Scheme
}

// RoundTrip implements the http.RoundTripper interface.
// Bypassed requests go straight to the base transport untouched.
// Intercepted requests are network-first: the cache only answers when
// the network fetch fails.
func (g *Gatekeeper) RoundTrip(r *http.Request) (*http.Response, error) {
	if reason := g.decide(r); reason != "" {
		g.log.Trace().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("fwd", string(reason)).
			Msg("Bypassing request")
		return g.base.RoundTrip(r)
	}

	key := g.keyer.ForRequest(r)
	log := g.log.With().Str("key", key).Logger()

	var status gatestatus.Status
	res, err := g.base.RoundTrip(r)
	if err == nil {
		// non-2xx responses pass through untouched and uncached
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			status.Forward(gatestatus.FwdReasonMiss)
			// a failed write must not block the fetched response
			status.Stored = g.store(key, r, res)
			res.Header.Set(gatestatus.HeaderName, status.String())
		}
		return res, nil
	}
	log.Debug().Err(err).Msg("Network fetch failed, consulting cache")

	if res, ok := g.lookup(key, r); ok {
		status.Hit()
		res.Header.Set(gatestatus.HeaderName, status.String())
		log.Debug().Msg("Serving cached response")
		return res, nil
	}

	if isNavigation(r) {
		if res, ok := g.lookup(g.keyer.ForPath(g.policy.Fallback), r); ok {
			status.Fallback()
			res.Header.Set(gatestatus.HeaderName, status.String())
			log.Debug().Str("fallback", g.policy.Fallback).Msg("Serving fallback document")
			return res, nil
		}
	}

	return nil, fmt.Errorf("fetch %s %s: %w", r.Method, r.URL.Path, err)
}

// lookup reads and deserializes an entry from the current generation.
func (g *Gatekeeper) lookup(key string, r *http.Request) (*http.Response, bool) {
	bts, ok, err := g.cache.Get(g.generation, key)
	if err != nil {
		g.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	res, err := serializer.BytesToResponse(bts, r)
	if err != nil {
		g.log.Error().Err(err).Str("key", key).Msg("Could not deserialize stored response")
		return nil, false
	}
	return res, true
}

// store serializes the response into the current generation.
// It is best-effort: the response stays readable for the caller
// whether or not the write succeeds.
func (g *Gatekeeper) store(key string, r *http.Request, res *http.Response) bool {
	if res.Request == nil {
		res.Request = r
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("Could not serialize response")
		return false
	}
	if err := g.cache.Put(g.generation, key, bts); err != nil {
		g.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return false
	}
	g.log.Trace().Str("key", key).Msg("Cache write")
	return true
}
