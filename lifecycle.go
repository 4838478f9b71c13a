package cachegate

import (
	"context"
	"fmt"
	"net/http"

	serializer "github.com/cache-gate/cache-gate/pkg/response-serializer"
)

// Phase is the lifecycle phase of the gatekeeper's own cache generation.
// Generations move absent -> installing -> current; generations of other
// versions are superseded and deleted during activation.
type Phase int

const (
	PhaseAbsent Phase = iota
	PhaseInstalling
	PhaseCurrent
)

func (p Phase) String() string {
	switch p {
	case PhaseInstalling:
		return "installing"
	case PhaseCurrent:
		return "current"
	default:
		return "absent"
	}
}

// Phase returns the current lifecycle phase.
func (g *Gatekeeper) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Gatekeeper) setPhase(p Phase) {
	g.mu.Lock()
	g.phase = p
	g.mu.Unlock()
}

// Install opens the generation for this version and pre-populates it
// with the configured seed paths.
// Seeding is best-effort: a failed fetch (e.g. offline at install time)
// is logged and skipped, and installation still succeeds.
// Install is idempotent, since seed entries are overwritten in full.
func (g *Gatekeeper) Install(ctx context.Context) error {
	g.setPhase(PhaseInstalling)
	if err := g.cache.Open(g.generation); err != nil {
		return fmt.Errorf("open generation %s: %w", g.generation, err)
	}
	for _, seed := range g.policy.Seeds {
		if err := g.fetchIntoCache(ctx, http.MethodGet, seed); err != nil {
			g.log.Warn().Err(err).Str("seed", seed).Msg("Could not pre-populate seed")
		}
	}
	g.log.Info().Int("seeds", len(g.policy.Seeds)).Msg("Install complete")
	return nil
}

// Activate makes this generation the current one.
// Every other generation is deleted, so no stale entry is reachable
// once activation returns.
func (g *Gatekeeper) Activate(ctx context.Context) error {
	names, err := g.cache.Generations()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, name := range names {
		if name == g.generation {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.cache.DeleteGeneration(name); err != nil {
			return fmt.Errorf("delete superseded generation %s: %w", name, err)
		}
		g.log.Info().Str("superseded", name).Msg("Deleted stale generation")
	}
	g.setPhase(PhaseCurrent)
	g.log.Info().Msg("Activation complete")
	return nil
}

// Run installs and activates the gatekeeper, in that order, and starts
// the background refresh loop if configured.
// Install fully resolves before Activate begins, and Activate fully
// resolves before Run returns.
func (g *Gatekeeper) Run(ctx context.Context) error {
	if err := g.Install(ctx); err != nil {
		return err
	}
	if err := g.Activate(ctx); err != nil {
		return err
	}
	if g.refreshInterval != 0 {
		go g.refreshLoop(ctx)
	}
	return nil
}

// fetchIntoCache fetches the given path from the origin and stores the
// response in the current generation, keyed by method and path.
func (g *Gatekeeper) fetchIntoCache(ctx context.Context, method, path string) error {
	uri := g.origin.String() + path
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return err
	}
	res, err := g.base.RoundTrip(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("fetch %s: unexpected status %d", path, res.StatusCode)
	}
	if res.Request == nil {
		res.Request = req
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		return err
	}
	return g.cache.Put(g.generation, g.keyer.ForRequest(req), bts)
}
