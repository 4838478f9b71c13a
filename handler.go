package cachegate

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	gatestatus "github.com/cache-gate/cache-gate/pkg/gate-status"

	"github.com/google/uuid"
)

const requestIdHeader = "X-Request-Id"

// Handler returns an http.Handler that proxies requests to the origin
// through the gatekeeper, so the proxy keeps serving cached content
// when the origin is unreachable.
// The handler reports its decision in the Gate-Status response header.
func (g *Gatekeeper) Handler() http.Handler {
	proxy := &httputil.ReverseProxy{
		Director:  createDirector(g.origin),
		Transport: g,
		ModifyResponse: func(res *http.Response) error {
			g.logRequest(res)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.Error().
				Err(err).
				Str("requestId", r.Header.Get(requestIdHeader)).
				Str("url", r.URL.String()).
				Msg("Could not serve request from network or cache")
			http.Error(w, "Could not connect to origin", http.StatusBadGateway)
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := g.decide(r); reason != "" {
			var status gatestatus.Status
			status.Forward(reason)
			w.Header().Add(gatestatus.HeaderName, status.String())
		}
		proxy.ServeHTTP(w, r)
	})
}

func createDirector(origin url.URL) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = origin.Scheme
		req.URL.Host = origin.Host
		req.Host = origin.Host
		// the director gets the proxy's outbound clone,
		// so the caller's header map stays untouched
		if req.Header.Get(requestIdHeader) == "" {
			req.Header.Set(requestIdHeader, uuid.NewString())
		}
	}
}

func (g *Gatekeeper) logRequest(res *http.Response) {
	evt := g.log.Debug().
		Int("statusCode", res.StatusCode).
		Str("gate", res.Header.Get(gatestatus.HeaderName))
	if res.Request != nil {
		evt = evt.
			Str("method", res.Request.Method).
			Str("url", res.Request.URL.String()).
			Str("requestId", res.Request.Header.Get(requestIdHeader))
	}
	evt.Msg("Sending response to client")
}
