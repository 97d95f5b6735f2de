package sync

import (
	"context"
	"fmt"

	"github.com/njoerd114/bdcollect/internal/catalog"
)

// WarmStart seeds the stores from the offline cache so membership queries
// work before the first refresh, or without a network at all. It returns
// false when there is no cache or the cache is empty.
//
// WarmStart only touches local state; call [Coordinator.RefreshAll]
// afterwards to reconcile with the server.
func (c *Coordinator) WarmStart(ctx context.Context) (bool, error) {
	if c.cache == nil {
		c.log.Debug("no offline cache configured, skipping warm start")
		return false, nil
	}

	coll, err := c.cache.LoadList(ctx, catalog.KindCollection)
	if err != nil {
		return false, fmt.Errorf("loading cached collection: %w", err)
	}
	wish, err := c.cache.LoadList(ctx, catalog.KindWishlist)
	if err != nil {
		return false, fmt.Errorf("loading cached wishlist: %w", err)
	}
	excluded, err := c.cache.LoadExclusions(ctx)
	if err != nil {
		return false, fmt.Errorf("loading cached exclusions: %w", err)
	}

	if len(coll) == 0 && len(wish) == 0 && len(excluded) == 0 {
		c.log.Debug("offline cache is empty, skipping warm start")
		return false, nil
	}

	c.flags.applyMu.Lock()
	c.collection.ReplaceAll(coll)
	c.wishlist.ReplaceAll(c.withoutOwned(wish))
	c.exclusions.ReplaceAll(excluded)
	c.flags.applyMu.Unlock()

	last, err := c.cache.LastRefresh(ctx)
	if err != nil {
		c.log.Debug("reading last refresh time", "error", err)
	}
	c.log.Info("warm start from offline cache",
		"collection", c.collection.Len(),
		"wishlist", c.wishlist.Len(),
		"excluded", c.exclusions.Len(),
		"last_refresh", last,
	)
	return true, nil
}
