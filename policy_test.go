package cachegate

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	policy := DefaultPolicy()
	cases := []struct {
		path string
		want Class
	}{
		{"/api/meals", ClassExcluded},
		{"/fitbit/callback", ClassExcluded},
		{"/coach/weekly", ClassExcluded},
		{"/dashboard/summary", ClassExcluded},
		{"/static/logo.png", ClassStatic},
		{"/static/app.JS", ClassStatic},
		{"/static/index.html", ClassStatic},
		{"/manifest.webmanifest", ClassStatic},
		{"/", ClassStatic},
		{"/some/unvisited/page", ClassStatic},
		{"/static/archive.tar.gz", ClassOther},
		{"/static/video.mp4", ClassOther},
	}
	for _, c := range cases {
		if got := policy.Classify(c.path); got != c.want {
			t.Fatalf("Classify(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestLoadPolicy(t *testing.T) {
	policyYaml := `
excluded:
  - prefix: /api/
    reason: dynamic endpoints
  - prefix: /auth/
    reason: authentication callbacks
extensions: [html, css]
seeds: [/, /index.html]
fallback: /index.html
`
	filename := filepath.Join(t.TempDir(), "policy.yml")
	if err := os.WriteFile(filename, []byte(policyYaml), 0644); err != nil {
		t.Fatal(err)
	}

	policy, err := LoadPolicy(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(policy.Excluded) != 2 || policy.Excluded[1].Prefix != "/auth/" {
		t.Fatalf("Excluded is %+v", policy.Excluded)
	}
	if policy.Classify("/auth/callback") != ClassExcluded {
		t.Fatal("Configured exclusion not applied")
	}
	if policy.Classify("/static/logo.png") != ClassOther {
		t.Fatal("Extension outside configured allow-list should not be static")
	}
	if policy.Fallback != "/index.html" {
		t.Fatalf("Fallback is %q", policy.Fallback)
	}
}

func TestIsNavigation(t *testing.T) {
	req, _ := http.NewRequest("GET", "/page", nil)
	if isNavigation(req) {
		t.Fatal("Bare request should not be a navigation")
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if !isNavigation(req) {
		t.Fatal("Accept text/html should be a navigation")
	}
	req.Header.Del("Accept")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	if !isNavigation(req) {
		t.Fatal("Sec-Fetch-Mode navigate should be a navigation")
	}
}
