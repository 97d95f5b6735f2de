// Package sync implements the collection/wishlist synchronization and
// per-item flag state engine for bdcollect. It mirrors the server's
// collection and wishlist in two [catalog.Store]s, applies flag toggles
// optimistically, confirms them with the remote API and rolls back on
// failure.
//
// The package contains four main components:
//
//   - [FlagEngine] runs the apply/confirm/rollback protocol for one item.
//   - [Coordinator] owns both stores and is the façade used by the UI layer.
//   - [Engine] runs the background refresh loop and reacts to reconnects.
//   - [Coordinator.WarmStart] seeds the stores from the offline cache.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

// RemoteClient provides access to the user's lists on the catalog API.
// Implemented by [remote.Client].
type RemoteClient interface {
	FetchCollection(ctx context.Context) ([]model.Album, error)
	FetchWishlist(ctx context.Context) ([]model.Album, error)
	SetFlag(ctx context.Context, id model.Identity, flag model.Flag, value bool) error
	DeleteFromCollection(ctx context.Context, id model.Identity) error
	ExcludeItem(ctx context.Context, id model.Identity) error
	IncludeItem(ctx context.Context, id model.Identity) error
}

// Gate reports network availability. Implemented by [connectivity.Monitor].
type Gate interface {
	NetworkAvailable() bool
	WifiOnlySatisfied() bool
}

// Cache persists the stores for offline use. Implemented by [state.Store].
type Cache interface {
	SaveList(ctx context.Context, kind catalog.Kind, items []model.Album) error
	LoadList(ctx context.Context, kind catalog.Kind) ([]model.Album, error)
	SaveExclusions(ctx context.Context, ids []model.Identity) error
	LoadExclusions(ctx context.Context) ([]model.Identity, error)
	SetLastRefresh(ctx context.Context, t time.Time) error
	LastRefresh(ctx context.Context) (time.Time, error)
	Clear(ctx context.Context) error
}

// Preferences are user settings the core exposes read-only to the UI layer.
type Preferences struct {
	// WifiOnly restricts full refreshes to wifi connections.
	WifiOnly bool

	// ConfirmRemoval asks the UI to confirm destructive removals.
	ConfirmRemoval bool

	// RetractableUI is a layout preference passed through untouched.
	RetractableUI bool
}
