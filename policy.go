package cachegate

import (
	"net/http"
	"os"
	stdpath "path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is the result of classifying a request path.
type Class int

const (
	// ClassExcluded paths must bypass the gate entirely.
	ClassExcluded Class = iota
	// ClassStatic paths are eligible for caching.
	ClassStatic
	// ClassOther paths are not excluded, but not cacheable either.
	ClassOther
)

// ExcludedPath is a path prefix the gate must never intercept,
// together with the reason for the exclusion.
type ExcludedPath struct {
	Prefix string `yaml:"prefix"`
	Reason string `yaml:"reason"`
}

// Policy holds the externally supplied caching rules.
// The excluded set differs between deployments, so it is configuration
// rather than code.
type Policy struct {
	// Path prefixes that bypass the gate entirely.
	Excluded []ExcludedPath `yaml:"excluded"`
	// File extensions (without the dot) eligible for caching.
	// Extensionless document paths are always eligible.
	Extensions []string `yaml:"extensions"`
	// Paths fetched into the cache at install time, in order.
	Seeds []string `yaml:"seeds"`
	// Document served for failed navigations with no exact cache match.
	Fallback string `yaml:"fallback"`
}

// DefaultPolicy returns the policy for the observed application.
func DefaultPolicy() Policy {
	return Policy{
		Excluded: []ExcludedPath{
			{Prefix: "/api/", Reason: "dynamic endpoints"},
			{Prefix: "/fitbit/", Reason: "integration callbacks"},
			{Prefix: "/healthplanet/", Reason: "integration callbacks"},
			{Prefix: "/coach/", Reason: "per-user coaching"},
			{Prefix: "/dashboard/", Reason: "per-user dashboard"},
		},
		Extensions: []string{
			"html", "css", "js", "mjs",
			"png", "jpg", "jpeg", "gif", "svg", "ico", "webp",
			"json", "webmanifest", "map", "txt",
			"woff", "woff2",
		},
		Seeds: []string{
			"/",
			"/static/index.html",
			"/static/logo.png",
		},
		Fallback: "/static/index.html",
	}
}

// LoadPolicy reads a policy from the given yaml file.
func LoadPolicy(filename string) (Policy, error) {
	var policy Policy
	policyBytes, err := os.ReadFile(filename)
	if err != nil {
		return policy, err
	}
	err = yaml.Unmarshal(policyBytes, &policy)
	return policy, err
}

// Classify maps a request path to its class.
// Extensionless paths classify as static so that page navigations
// participate in caching and offline fallback.
func (p Policy) Classify(urlPath string) Class {
	for _, excluded := range p.Excluded {
		if strings.HasPrefix(urlPath, excluded.Prefix) {
			return ClassExcluded
		}
	}
	ext := strings.TrimPrefix(stdpath.Ext(urlPath), ".")
	if ext == "" {
		return ClassStatic
	}
	ext = strings.ToLower(ext)
	for _, allowed := range p.Extensions {
		if ext == allowed {
			return ClassStatic
		}
	}
	return ClassOther
}

// isNavigation reports whether the request is a top-level page navigation.
// Browsers mark these with Sec-Fetch-Mode; for plain clients an Accept
// header asking for html is treated the same.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
