package cachegate

import (
	"context"
	"time"

	cachekey "github.com/cache-gate/cache-gate/pkg/cache-key"

	"golang.org/x/sync/errgroup"
)

const refreshConcurrency = 4

// refreshLoop periodically re-fetches every entry in the current
// generation, so long-lived caches keep up with origin deployments
// between version bumps.
func (g *Gatekeeper) refreshLoop(ctx context.Context) {
	g.log.Info().Msgf("Starting cache refresh loop with interval %s", g.refreshInterval)
	ticker := time.NewTicker(g.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.log.Info().Msg("Stopping cache refresh loop")
			return
		case <-ticker.C:
			if err := g.RefreshAll(ctx); err != nil {
				g.log.Warn().Err(err).Msg("Cache refresh pass failed")
			}
		}
	}
}

// RefreshAll re-fetches all entries of the current generation with
// bounded concurrency.
// A failed fetch leaves the stored entry in place, since a stale entry
// still beats no entry when the network goes away.
func (g *Gatekeeper) RefreshAll(ctx context.Context) error {
	keys := make([]string, 0)
	g.cache.Keys(g.generation, func(key string) {
		keys = append(keys, key)
	})

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(refreshConcurrency)
	for _, key := range keys {
		key := key
		grp.Go(func() error {
			g.refreshEntry(ctx, key)
			return nil
		})
	}
	return grp.Wait()
}

// refreshEntry re-fetches the stored response identified by the given key.
func (g *Gatekeeper) refreshEntry(ctx context.Context, key string) {
	req, err := g.keyer.RequestFromKey(key)
	if err == cachekey.ErrMethodNotSupported {
		return
	}
	if err != nil {
		g.log.Error().Err(err).Str("key", key).Msg("Could not create request from key")
		return
	}
	if err := g.fetchIntoCache(ctx, req.Method, req.URL.RequestURI()); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("Could not refresh cache entry")
	}
}
