package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Mock Remote -------------------------------------------------------------

// mockRemote is an in-memory catalog API. Mutation calls are logged as
// "<op> <work>/<edition>" strings ("set read=true 1/1", "delete 1/1", ...).
type mockRemote struct {
	mu         gosync.Mutex
	collection []model.Album
	wishlist   []model.Album
	collErr    error
	wishErr    error
	fail       map[string]error // op ("set", "delete", "exclude", "include") → error
	calls      []string

	// fetches counts FetchCollection calls.
	fetches atomic.Int32

	// When non-nil, every mutation sends its op on entered and then waits
	// for a value on proceed. Fetches wait on fetchGate.
	entered   chan string
	proceed   chan struct{}
	fetchGate chan struct{}
}

func newMockRemote() *mockRemote {
	return &mockRemote{fail: make(map[string]error)}
}

func (m *mockRemote) setLists(collection, wishlist []model.Album) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection = collection
	m.wishlist = wishlist
}

func (m *mockRemote) setFetchErrs(coll, wish error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collErr, m.wishErr = coll, wish
}

func (m *mockRemote) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *mockRemote) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRemote) FetchCollection(_ context.Context) ([]model.Album, error) {
	m.fetches.Add(1)
	if m.fetchGate != nil {
		<-m.fetchGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collErr != nil {
		return nil, m.collErr
	}
	return cloneAll(m.collection), nil
}

func (m *mockRemote) FetchWishlist(_ context.Context) ([]model.Album, error) {
	if m.fetchGate != nil {
		<-m.fetchGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wishErr != nil {
		return nil, m.wishErr
	}
	return cloneAll(m.wishlist), nil
}

func (m *mockRemote) SetFlag(ctx context.Context, id model.Identity, flag model.Flag, value bool) error {
	return m.mutation(ctx, "set", fmt.Sprintf("set %s=%v %s", flag, value, id))
}

func (m *mockRemote) DeleteFromCollection(ctx context.Context, id model.Identity) error {
	return m.mutation(ctx, "delete", "delete "+id.String())
}

func (m *mockRemote) ExcludeItem(ctx context.Context, id model.Identity) error {
	return m.mutation(ctx, "exclude", "exclude "+id.String())
}

func (m *mockRemote) IncludeItem(ctx context.Context, id model.Identity) error {
	return m.mutation(ctx, "include", "include "+id.String())
}

func (m *mockRemote) mutation(ctx context.Context, op, call string) error {
	if m.entered != nil {
		m.entered <- call
		select {
		case <-m.proceed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.fail[op]
}

func cloneAll(items []model.Album) []model.Album {
	out := make([]model.Album, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}

// --- Mock Gate ---------------------------------------------------------------

type mockGate struct {
	online atomic.Bool
	wifi   atomic.Bool
}

func newMockGate(online, wifi bool) *mockGate {
	g := &mockGate{}
	g.online.Store(online)
	g.wifi.Store(wifi)
	return g
}

func (g *mockGate) NetworkAvailable() bool  { return g.online.Load() }
func (g *mockGate) WifiOnlySatisfied() bool { return g.wifi.Load() }

// --- Mock Cache --------------------------------------------------------------

type mockCache struct {
	mu          gosync.Mutex
	lists       map[catalog.Kind][]model.Album
	exclusions  []model.Identity
	lastRefresh time.Time
	saves       int
	cleared     bool
}

func newMockCache() *mockCache {
	return &mockCache{lists: make(map[catalog.Kind][]model.Album)}
}

func (c *mockCache) SaveList(_ context.Context, kind catalog.Kind, items []model.Album) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[kind] = cloneAll(items)
	c.saves++
	return nil
}

func (c *mockCache) LoadList(_ context.Context, kind catalog.Kind) ([]model.Album, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.lists[kind]), nil
}

func (c *mockCache) SaveExclusions(_ context.Context, ids []model.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exclusions = append([]model.Identity(nil), ids...)
	return nil
}

func (c *mockCache) LoadExclusions(_ context.Context) ([]model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Identity(nil), c.exclusions...), nil
}

func (c *mockCache) SetLastRefresh(_ context.Context, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = t
	return nil
}

func (c *mockCache) LastRefresh(_ context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh, nil
}

func (c *mockCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = make(map[catalog.Kind][]model.Album)
	c.exclusions = nil
	c.lastRefresh = time.Time{}
	c.cleared = true
	return nil
}

func (c *mockCache) list(kind catalog.Kind) []model.Album {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.lists[kind])
}

// --- Fixtures ----------------------------------------------------------------

func ident(work, edition int64) model.Identity {
	return model.Identity{WorkID: work, EditionID: edition}
}

// owned builds a collection row with the given extra flags set.
func owned(work, edition int64, title string, flags ...model.Flag) model.Album {
	a := model.Album{ID: ident(work, edition), Title: title}
	a.Flags = a.Flags.With(model.FlagOwned, true)
	for _, f := range flags {
		a.Flags = a.Flags.With(f, true)
	}
	return a
}

// wanted builds a wishlist row.
func wanted(work, edition int64, title string) model.Album {
	a := model.Album{ID: ident(work, edition), Title: title}
	a.Flags = a.Flags.With(model.FlagOwned, false).With(model.FlagWanted, true)
	return a
}
