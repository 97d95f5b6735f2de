package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

// RefreshResult summarises one full refresh.
type RefreshResult struct {
	CollectionCount int
	WishlistCount   int

	// Changed counts albums added, removed or modified across the halves
	// that succeeded.
	Changed int
}

// Counts is the number of items in each membership state.
type Counts struct {
	Owned    int
	Wanted   int
	Excluded int
}

// Coordinator is the façade the UI layer talks to. It exclusively owns the
// collection store, the wishlist store, the exclusion side-table and the
// processing bits. Build one per authenticated session with
// [NewCoordinator]; there is no package-level state.
type Coordinator struct {
	remote RemoteClient
	gate   Gate
	cache  Cache
	prefs  Preferences
	log    *slog.Logger

	collection *catalog.Store
	wishlist   *catalog.Store
	exclusions *catalog.Exclusions
	flags      *FlagEngine

	refreshGroup singleflight.Group
	inst         instruments
}

// NewCoordinator creates a Coordinator with empty stores. gate and cache may
// be nil: a nil gate treats the network as always available, a nil cache
// disables offline persistence.
func NewCoordinator(remote RemoteClient, gate Gate, cache Cache, prefs Preferences, logger *slog.Logger) *Coordinator {
	collection := catalog.NewCollection()
	wishlist := catalog.NewWishlist()
	exclusions := catalog.NewExclusions()

	return &Coordinator{
		remote:     remote,
		gate:       gate,
		cache:      cache,
		prefs:      prefs,
		log:        logger,
		collection: collection,
		wishlist:   wishlist,
		exclusions: exclusions,
		flags:      NewFlagEngine(collection, wishlist, exclusions, remote, logger),
		inst:       newInstruments(logger),
	}
}

// --- Refresh -----------------------------------------------------------------

// RefreshAll fetches the collection and the wishlist wholesale and replaces
// the local stores. A half that fails leaves its store untouched while the
// other half is still applied; the failure is reported as a [*FetchError].
// Concurrent calls share one round trip.
func (c *Coordinator) RefreshAll(ctx context.Context) (RefreshResult, error) {
	if err := c.requireNetwork(true); err != nil {
		c.inst.rejected.Add(ctx, 1)
		return RefreshResult{}, err
	}

	// The shared round trip must outlive any single caller, so it runs on a
	// context that keeps ctx's values but not its cancellation.
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.log.Debug("refresh coalesced with an in-flight one")
		}
		res, _ := r.Val.(RefreshResult)
		return res, r.Err
	}
}

func (c *Coordinator) refresh(ctx context.Context) (RefreshResult, error) {
	ctx, span := c.inst.tracer.Start(ctx, spanRefresh)
	defer span.End()
	c.inst.refreshes.Add(ctx, 1)

	var (
		wg                   gosync.WaitGroup
		collItems, wishItems []model.Album
		collErr, wishErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		collItems, collErr = c.remote.FetchCollection(ctx)
	}()
	go func() {
		defer wg.Done()
		wishItems, wishErr = c.remote.FetchWishlist(ctx)
	}()
	wg.Wait()

	var res RefreshResult
	wishlistChanged := false

	c.flags.applyMu.Lock()
	if collErr == nil {
		res.Changed += changedCount(c.collection.Items(), collItems)
		c.collection.ReplaceAll(collItems)
	}
	switch {
	case wishErr == nil:
		wishItems = c.withoutOwned(wishItems)
		res.Changed += changedCount(c.wishlist.Items(), wishItems)
		c.wishlist.ReplaceAll(wishItems)
		wishlistChanged = true
	case collErr == nil:
		// Keep the stale wishlist consistent with the fresh collection.
		stale := c.wishlist.Items()
		if kept := c.withoutOwned(stale); len(kept) != len(stale) {
			c.wishlist.ReplaceAll(kept)
			wishlistChanged = true
		}
	}
	if collErr == nil || wishlistChanged {
		if n := c.flags.reapplyUnconfirmed(); n > 0 {
			c.log.Debug("kept unconfirmed toggles over refreshed lists", "count", n)
		}
	}
	res.CollectionCount = c.collection.Len()
	res.WishlistCount = c.wishlist.Len()
	c.flags.applyMu.Unlock()

	if collErr == nil {
		c.saveList(ctx, c.collection)
	}
	if wishlistChanged {
		c.saveList(ctx, c.wishlist)
	}
	if (collErr == nil || wishErr == nil) && c.cache != nil {
		if err := c.cache.SetLastRefresh(ctx, time.Now().UTC()); err != nil {
			c.log.Error("recording refresh time", "error", err)
		}
	}

	if res.Changed > 0 {
		c.inst.changed.Add(ctx, int64(res.Changed))
	}
	span.SetAttributes(
		attribute.Int("sync.collection", res.CollectionCount),
		attribute.Int("sync.wishlist", res.WishlistCount),
		attribute.Int("sync.changed", res.Changed),
	)

	if collErr != nil || wishErr != nil {
		fe := &FetchError{CollectionErr: collErr, WishlistErr: wishErr}
		c.inst.refreshErrors.Add(ctx, int64(len(fe.Unwrap())))
		span.RecordError(fe)
		c.log.Warn("refresh incomplete",
			"collection_error", collErr,
			"wishlist_error", wishErr,
			"collection", res.CollectionCount,
			"wishlist", res.WishlistCount,
		)
		return res, fe
	}

	c.log.Info("refresh complete",
		"collection", res.CollectionCount,
		"wishlist", res.WishlistCount,
		"changed", res.Changed,
	)
	return res, nil
}

// withoutOwned drops wishlist entries the collection already holds. Caller
// holds applyMu.
func (c *Coordinator) withoutOwned(items []model.Album) []model.Album {
	out := items[:0:0]
	for i := range items {
		if c.collection.Contains(items[i].ID) {
			continue
		}
		out = append(out, items[i])
	}
	if dropped := len(items) - len(out); dropped > 0 {
		c.log.Debug("dropped wishlist entries already owned", "count", dropped)
	}
	return out
}

// changedCount returns how many albums differ between two snapshots.
func changedCount(before, after []model.Album) int {
	old := make(map[model.Identity]string, len(before))
	for i := range before {
		old[before[i].ID] = before[i].ContentHash()
	}
	n := 0
	for i := range after {
		h, ok := old[after[i].ID]
		if !ok || h != after[i].ContentHash() {
			n++
		}
		delete(old, after[i].ID)
	}
	return n + len(old)
}

// --- Toggles -----------------------------------------------------------------

// ToggleFlag flips flag on id and returns the resulting membership state.
func (c *Coordinator) ToggleFlag(ctx context.Context, id model.Identity, flag model.Flag) (model.Membership, error) {
	return c.toggle(ctx, id, flag, nil)
}

// ToggleFlagWith is ToggleFlag for an album the stores may not hold yet:
// album provides the metadata stored if the toggle adds it.
func (c *Coordinator) ToggleFlagWith(ctx context.Context, album model.Album, flag model.Flag) (model.Membership, error) {
	return c.toggle(ctx, album.ID, flag, &album)
}

func (c *Coordinator) toggle(ctx context.Context, id model.Identity, flag model.Flag, seed *model.Album) (model.Membership, error) {
	ctx, span := c.inst.tracer.Start(ctx, spanToggle, trace.WithAttributes(
		attribute.Int64("album.work_id", id.WorkID),
		attribute.Int64("album.edition_id", id.EditionID),
		attribute.String("album.flag", flag.String()),
	))
	defer span.End()

	if err := c.requireNetwork(false); err != nil {
		c.inst.rejected.Add(ctx, 1)
		return c.flags.Membership(id), err
	}

	m, err := c.flags.Toggle(ctx, id, flag, seed)
	span.SetAttributes(attribute.String("album.membership", m.String()))
	if err != nil {
		var te *ToggleError
		if errors.As(err, &te) {
			c.inst.rollbacks.Add(ctx, 1)
			// A refresh may have written the optimistic state to the cache
			// while confirmation was pending.
			c.persist(ctx)
		} else {
			c.inst.rejected.Add(ctx, 1)
		}
		span.RecordError(err)
		return m, err
	}

	c.inst.toggles.Add(ctx, 1)
	c.persist(ctx)
	return m, nil
}

// ExcludeItem marks (exclude=true) or unmarks id as excluded from tracking.
// The item must be absent from both stores.
func (c *Coordinator) ExcludeItem(ctx context.Context, id model.Identity, exclude bool) error {
	ctx, span := c.inst.tracer.Start(ctx, spanExclude, trace.WithAttributes(
		attribute.Int64("album.work_id", id.WorkID),
		attribute.Int64("album.edition_id", id.EditionID),
		attribute.Bool("album.excluded", exclude),
	))
	defer span.End()

	if err := c.requireNetwork(false); err != nil {
		c.inst.rejected.Add(ctx, 1)
		return err
	}

	if err := c.flags.Exclude(ctx, id, exclude); err != nil {
		if errors.Is(err, ErrPrecondition) {
			c.inst.rejected.Add(ctx, 1)
		}
		span.RecordError(err)
		return err
	}

	c.inst.exclusions.Add(ctx, 1)
	c.saveExclusions(ctx)
	return nil
}

// requireNetwork samples the gate. bulk operations also honour the
// wifi-only preference.
func (c *Coordinator) requireNetwork(bulk bool) error {
	if c.gate == nil {
		return nil
	}
	if !c.gate.NetworkAvailable() {
		return ErrNoConnection
	}
	if bulk && c.prefs.WifiOnly && !c.gate.WifiOnlySatisfied() {
		return fmt.Errorf("%w: wifi-only mode is on and wifi is unavailable", ErrNoConnection)
	}
	return nil
}

// --- Reads -------------------------------------------------------------------

// Membership returns the derived membership state of id.
func (c *Coordinator) Membership(id model.Identity) model.Membership {
	return c.flags.Membership(id)
}

// Album returns the stored album for id and the store holding it. The
// collection wins when both hold it.
func (c *Coordinator) Album(id model.Identity) (model.Album, catalog.Kind, bool) {
	c.flags.applyMu.RLock()
	defer c.flags.applyMu.RUnlock()

	if a, ok := c.collection.Get(id); ok {
		return a, catalog.KindCollection, true
	}
	if a, ok := c.wishlist.Get(id); ok {
		return a, catalog.KindWishlist, true
	}
	return model.Album{}, "", false
}

// Collection returns a snapshot of the owned albums in order.
func (c *Coordinator) Collection() []model.Album { return c.collection.Items() }

// Wishlist returns a snapshot of the wanted albums in order.
func (c *Coordinator) Wishlist() []model.Album { return c.wishlist.Items() }

// Excluded returns the identities excluded from tracking.
func (c *Coordinator) Excluded() []model.Identity { return c.exclusions.Items() }

// Counts returns how many items are in each membership state.
func (c *Coordinator) Counts() Counts {
	c.flags.applyMu.RLock()
	defer c.flags.applyMu.RUnlock()

	excluded := 0
	for _, id := range c.exclusions.Items() {
		if !c.collection.Contains(id) && !c.wishlist.Contains(id) {
			excluded++
		}
	}
	return Counts{
		Owned:    c.collection.Len(),
		Wanted:   c.wishlist.Len(),
		Excluded: excluded,
	}
}

// IsProcessing reports whether a toggle of flag on id awaits confirmation.
func (c *Coordinator) IsProcessing(id model.Identity, flag model.Flag) bool {
	return c.flags.IsProcessing(id, flag)
}

// Pending returns how many toggles for id are in flight or queued.
func (c *Coordinator) Pending(id model.Identity) int {
	return c.flags.Pending(id)
}

// Preferences returns the read-only user preferences.
func (c *Coordinator) Preferences() Preferences { return c.prefs }

// LastRefresh returns when the cache last recorded a successful refresh.
// The zero time means never or no cache.
func (c *Coordinator) LastRefresh(ctx context.Context) (time.Time, error) {
	if c.cache == nil {
		return time.Time{}, nil
	}
	return c.cache.LastRefresh(ctx)
}

// --- Invalidation & persistence ---------------------------------------------

// Invalidate discards both stores, the exclusion side-table and the offline
// cache. Called on logout.
func (c *Coordinator) Invalidate(ctx context.Context) error {
	c.flags.applyMu.Lock()
	c.collection.Clear()
	c.wishlist.Clear()
	c.exclusions.ReplaceAll(nil)
	c.flags.applyMu.Unlock()

	c.log.Info("local state invalidated")
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clearing offline cache: %w", err)
	}
	return nil
}

// persist writes both stores and the side-table to the cache. Failures are
// logged: the cache is a best-effort mirror.
func (c *Coordinator) persist(ctx context.Context) {
	c.saveList(ctx, c.collection)
	c.saveList(ctx, c.wishlist)
	c.saveExclusions(ctx)
}

func (c *Coordinator) saveList(ctx context.Context, s *catalog.Store) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveList(ctx, s.Kind(), s.Items()); err != nil {
		c.log.Error("saving list to cache", "list", s.Kind(), "error", err)
	}
}

func (c *Coordinator) saveExclusions(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveExclusions(ctx, c.exclusions.Items()); err != nil {
		c.log.Error("saving exclusions to cache", "error", err)
	}
}
