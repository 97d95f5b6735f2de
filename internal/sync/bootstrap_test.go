package sync

import (
	"context"
	"testing"
	"time"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

func TestWarmStart_LoadsCache(t *testing.T) {
	cache := newMockCache()
	ctx := context.Background()
	_ = cache.SaveList(ctx, catalog.KindCollection, []model.Album{owned(1, 1, "a"), owned(2, 1, "b")})
	_ = cache.SaveList(ctx, catalog.KindWishlist, []model.Album{wanted(1, 1, "a"), wanted(3, 1, "c")})
	_ = cache.SaveExclusions(ctx, []model.Identity{ident(4, 1)})
	_ = cache.SetLastRefresh(ctx, time.Now())

	remote := newMockRemote()
	c := NewCoordinator(remote, newMockGate(false, false), cache, Preferences{}, testLogger)

	ok, err := c.WarmStart(ctx)
	if err != nil {
		t.Fatalf("WarmStart: %v", err)
	}
	if !ok {
		t.Fatal("WarmStart = false, want true with a populated cache")
	}

	for _, tc := range []struct {
		id   model.Identity
		want model.Membership
	}{
		{ident(1, 1), model.Owned},
		{ident(2, 1), model.Owned},
		{ident(3, 1), model.Wanted},
		{ident(4, 1), model.Excluded},
	} {
		if got := c.Membership(tc.id); got != tc.want {
			t.Errorf("Membership(%s) = %v, want %v", tc.id, got, tc.want)
		}
	}
	if n := c.wishlist.Len(); n != 1 {
		t.Errorf("wishlist len = %d, want 1 (owned entry dropped)", n)
	}
	// Warm start never touches the network.
	if n := remote.fetches.Load(); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
}

func TestWarmStart_EmptyCache(t *testing.T) {
	c := NewCoordinator(newMockRemote(), nil, newMockCache(), Preferences{}, testLogger)
	ok, err := c.WarmStart(context.Background())
	if err != nil {
		t.Fatalf("WarmStart: %v", err)
	}
	if ok {
		t.Error("WarmStart = true, want false on empty cache")
	}
}

func TestWarmStart_NoCache(t *testing.T) {
	c := NewCoordinator(newMockRemote(), nil, nil, Preferences{}, testLogger)
	ok, err := c.WarmStart(context.Background())
	if err != nil || ok {
		t.Errorf("WarmStart = (%v, %v), want (false, nil)", ok, err)
	}
}
