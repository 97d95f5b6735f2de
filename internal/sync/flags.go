package sync

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

// callKind identifies one remote mutation in a transition.
type callKind int

const (
	callSetFlag callKind = iota
	callDelete
	callExclude
	callInclude
)

// remoteCall is one confirmation request sent after the optimistic apply.
type remoteCall struct {
	kind  callKind
	flag  model.Flag
	value bool
}

func (c remoteCall) String() string {
	switch c.kind {
	case callSetFlag:
		if c.value {
			return "set " + c.flag.String()
		}
		return "unset " + c.flag.String()
	case callDelete:
		return "delete"
	case callExclude:
		return "exclude"
	case callInclude:
		return "include"
	default:
		return "unknown"
	}
}

// entry is a stored album together with its position in the store.
type entry struct {
	album model.Album
	pos   int
}

// itemState is the local state of one identity across both stores and the
// exclusion side-table. It doubles as the rollback snapshot.
type itemState struct {
	collection *entry
	wishlist   *entry
	excluded   bool
}

// membership applies the precedence rule: collection, then wishlist, then
// the exclusion marker.
func (s itemState) membership() model.Membership {
	switch {
	case s.collection != nil:
		return model.Owned
	case s.wishlist != nil:
		return model.Wanted
	case s.excluded:
		return model.Excluded
	default:
		return model.Untracked
	}
}

func (s itemState) tracked() bool {
	return s.collection != nil || s.wishlist != nil
}

// value reads the current value of flag. The collection copy wins when both
// stores hold the item.
func (s itemState) value(flag model.Flag) bool {
	switch flag {
	case model.FlagOwned:
		return s.collection != nil
	case model.FlagExcludedFromTracking:
		return s.excluded && !s.tracked()
	}
	if s.collection != nil {
		return s.collection.album.Flags.Get(flag)
	}
	if s.wishlist != nil {
		if flag == model.FlagWanted {
			return true
		}
		return s.wishlist.album.Flags.Get(flag)
	}
	return false
}

// transition is the target local state of one toggle plus the remote calls
// that confirm it.
type transition struct {
	id         model.Identity
	flag       model.Flag
	target     bool
	collection *model.Album // nil: absent from the collection
	wishlist   *model.Album // nil: absent from the wishlist
	excluded   bool
	calls      []remoteCall
}

// pendingToggle is a transition applied locally but not yet confirmed.
// before is what a rollback restores.
type pendingToggle struct {
	t      transition
	before itemState
}

type processingKey struct {
	id   model.Identity
	flag model.Flag
}

// FlagEngine translates a flag-toggle intent into an optimistic local
// transition plus remote confirmation, and rolls the transition back when
// confirmation fails. Create one with [NewFlagEngine].
type FlagEngine struct {
	collection *catalog.Store
	wishlist   *catalog.Store
	exclusions *catalog.Exclusions
	remote     RemoteClient
	log        *slog.Logger

	// applyMu makes a transition across both stores and the side-table
	// atomic for readers. It is never held across a remote call.
	applyMu gosync.RWMutex

	queue *keyedQueue

	// unconfirmed holds the transition in flight per identity. Guarded by
	// applyMu; the queue guarantees at most one entry per identity.
	unconfirmed map[model.Identity]*pendingToggle

	procMu     gosync.Mutex
	processing map[processingKey]struct{}
}

// NewFlagEngine creates a FlagEngine operating on the given stores.
func NewFlagEngine(collection, wishlist *catalog.Store, exclusions *catalog.Exclusions, remote RemoteClient, logger *slog.Logger) *FlagEngine {
	return &FlagEngine{
		collection: collection,
		wishlist:   wishlist,
		exclusions: exclusions,
		remote:     remote,
		log:        logger,
		queue:       newKeyedQueue(),
		unconfirmed: make(map[model.Identity]*pendingToggle),
		processing:  make(map[processingKey]struct{}),
	}
}

// Membership returns the derived state of id. It is the only place the
// precedence rule is implemented.
func (e *FlagEngine) Membership(id model.Identity) model.Membership {
	e.applyMu.RLock()
	defer e.applyMu.RUnlock()
	return e.capture(id).membership()
}

// IsProcessing reports whether a toggle of flag on id is in flight.
func (e *FlagEngine) IsProcessing(id model.Identity, flag model.Flag) bool {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	_, ok := e.processing[processingKey{id, flag}]
	return ok
}

// Pending returns how many toggles for id are in flight or queued.
func (e *FlagEngine) Pending(id model.Identity) int {
	return e.queue.pending(id)
}

// Toggle flips flag on id. seed supplies album metadata when the toggle adds
// an untracked item to a store; it may be nil.
//
// Toggles on the same identity run one at a time in call order, each reading
// the state the previous one left behind. On remote failure the local state
// is restored exactly and a [*ToggleError] is returned.
func (e *FlagEngine) Toggle(ctx context.Context, id model.Identity, flag model.Flag, seed *model.Album) (model.Membership, error) {
	if !flag.Valid() {
		return e.Membership(id), preconditionf("unknown flag %d", int(flag))
	}

	release := e.queue.acquire(id)
	defer release()

	e.markProcessing(id, flag, true)
	defer e.markProcessing(id, flag, false)

	if flag == model.FlagExcludedFromTracking {
		e.applyMu.RLock()
		current := e.capture(id).value(flag)
		e.applyMu.RUnlock()
		err := e.exclude(ctx, id, !current)
		return e.Membership(id), err
	}

	// Plan and apply under a single lock hold.
	e.applyMu.Lock()
	before := e.capture(id)
	t, err := e.plan(before, id, flag, seed)
	if err != nil {
		e.applyMu.Unlock()
		return before.membership(), err
	}
	e.apply(t)
	pending := &pendingToggle{t: t, before: before}
	e.unconfirmed[id] = pending
	e.applyMu.Unlock()

	e.log.Debug("optimistic toggle applied",
		"work_id", id.WorkID,
		"edition_id", id.EditionID,
		"flag", flag,
		"value", t.target,
	)

	// Confirm remotely; on failure put everything back where it was.
	err = e.confirm(ctx, t)

	e.applyMu.Lock()
	delete(e.unconfirmed, id)
	if err != nil {
		e.restore(id, pending.before)
	}
	e.applyMu.Unlock()

	if err != nil {
		e.log.Warn("toggle rolled back",
			"work_id", id.WorkID,
			"edition_id", id.EditionID,
			"flag", flag,
			"error", err,
		)
		return e.Membership(id), &ToggleError{ID: id, Flag: flag, Err: err}
	}

	return e.Membership(id), nil
}

// Exclude marks or unmarks id as excluded from tracking. The item must be
// absent from both stores. The side-table changes only after the server
// confirms.
func (e *FlagEngine) Exclude(ctx context.Context, id model.Identity, exclude bool) error {
	release := e.queue.acquire(id)
	defer release()

	e.markProcessing(id, model.FlagExcludedFromTracking, true)
	defer e.markProcessing(id, model.FlagExcludedFromTracking, false)

	return e.exclude(ctx, id, exclude)
}

// exclude runs with the identity's queue slot already held.
func (e *FlagEngine) exclude(ctx context.Context, id model.Identity, exclude bool) error {
	e.applyMu.RLock()
	cur := e.capture(id)
	e.applyMu.RUnlock()

	if cur.tracked() {
		return preconditionf("%s is tracked as %s", id, cur.membership())
	}

	var err error
	if exclude {
		err = e.remote.ExcludeItem(ctx, id)
	} else {
		err = e.remote.IncludeItem(ctx, id)
	}
	if err != nil {
		return &ToggleError{ID: id, Flag: model.FlagExcludedFromTracking, Err: err}
	}

	e.applyMu.Lock()
	e.exclusions.Set(id, exclude)
	e.applyMu.Unlock()

	e.log.Debug("exclusion updated", "work_id", id.WorkID, "edition_id", id.EditionID, "excluded", exclude)
	return nil
}

// reapplyUnconfirmed lays every in-flight transition back over stores that
// were just replaced wholesale. The replaced state becomes the rollback
// target, so a later failure restores what the server reported. Caller
// holds applyMu.
func (e *FlagEngine) reapplyUnconfirmed() int {
	for id, p := range e.unconfirmed {
		p.before = e.capture(id)
		e.apply(p.t)
	}
	return len(e.unconfirmed)
}

// capture reads the local state of id. Caller holds applyMu.
func (e *FlagEngine) capture(id model.Identity) itemState {
	var s itemState
	if p, ok := e.collection.IndexOf(id); ok {
		if a, ok := e.collection.Get(id); ok {
			s.collection = &entry{album: a, pos: p}
		}
	}
	if p, ok := e.wishlist.IndexOf(id); ok {
		if a, ok := e.wishlist.Get(id); ok {
			s.wishlist = &entry{album: a, pos: p}
		}
	}
	s.excluded = e.exclusions.Contains(id)
	return s
}

// plan computes the target state and the confirming remote calls for one
// toggle. It never mutates anything.
func (e *FlagEngine) plan(cur itemState, id model.Identity, flag model.Flag, seed *model.Album) (transition, error) {
	t := transition{
		id:       id,
		flag:     flag,
		target:   !cur.value(flag),
		excluded: cur.excluded,
	}
	if cur.collection != nil {
		a := cur.collection.album
		t.collection = &a
	}
	if cur.wishlist != nil {
		a := cur.wishlist.album
		t.wishlist = &a
	}

	switch flag {
	case model.FlagOwned:
		if !t.target {
			// Leaving the collection also drops any wishlist twin: the
			// server deletes the whole row.
			t.collection = nil
			t.wishlist = nil
			t.calls = []remoteCall{{kind: callDelete}}
			break
		}
		base := seedAlbum(id, cur, seed)
		base.Flags = base.Flags.
			With(model.FlagOwned, true).
			With(model.FlagWanted, false).
			With(model.FlagExcludedFromTracking, false)
		t.collection = &base
		t.wishlist = nil
		t.calls = untrackedPrelude(cur, &t)
		t.calls = append(t.calls, remoteCall{kind: callSetFlag, flag: model.FlagOwned, value: true})

	case model.FlagWanted:
		switch {
		case cur.collection != nil:
			// Owned items keep their row; only the marker moves.
			t.collection.Flags = t.collection.Flags.With(model.FlagWanted, t.target)
			t.calls = []remoteCall{{kind: callSetFlag, flag: model.FlagWanted, value: t.target}}
		case cur.wishlist != nil:
			// No collection copy, so the remote row can go.
			t.wishlist = nil
			t.calls = []remoteCall{{kind: callDelete}}
		default:
			base := seedAlbum(id, cur, seed)
			base.Flags = base.Flags.
				With(model.FlagWanted, true).
				With(model.FlagOwned, false).
				With(model.FlagExcludedFromTracking, false)
			t.wishlist = &base
			t.calls = untrackedPrelude(cur, &t)
			t.calls = append(t.calls, remoteCall{kind: callSetFlag, flag: model.FlagWanted, value: true})
		}

	default:
		switch {
		case cur.collection != nil:
			t.collection.Flags = t.collection.Flags.With(flag, t.target)
		case cur.wishlist != nil:
			t.wishlist.Flags = t.wishlist.Flags.With(flag, t.target)
		default:
			return transition{}, preconditionf("%s is not in the collection or the wishlist", id)
		}
		t.calls = []remoteCall{{kind: callSetFlag, flag: flag, value: t.target}}
	}

	// At most one store per identity once the transition lands.
	if t.collection != nil {
		t.wishlist = nil
	}
	return t, nil
}

// untrackedPrelude clears the exclusion marker before an excluded item is
// added to a store.
func untrackedPrelude(cur itemState, t *transition) []remoteCall {
	if !cur.excluded {
		return nil
	}
	t.excluded = false
	return []remoteCall{{kind: callInclude}}
}

// seedAlbum picks the metadata for an album entering a store.
func seedAlbum(id model.Identity, cur itemState, seed *model.Album) model.Album {
	switch {
	case cur.wishlist != nil:
		return cur.wishlist.album.Clone()
	case cur.collection != nil:
		return cur.collection.album.Clone()
	case seed != nil:
		a := seed.Clone()
		a.ID = id
		return a
	default:
		return model.Album{ID: id}
	}
}

// apply moves local state to t. Caller holds applyMu.
func (e *FlagEngine) apply(t transition) {
	applyStore(e.collection, t.id, t.collection)
	applyStore(e.wishlist, t.id, t.wishlist)
	e.exclusions.Set(t.id, t.excluded)
}

func applyStore(s *catalog.Store, id model.Identity, want *model.Album) {
	if want == nil {
		s.Remove(id)
		return
	}
	if !s.Update(*want) {
		s.Add(*want)
	}
}

// restore puts id back exactly as captured, including store positions.
// Caller holds applyMu.
func (e *FlagEngine) restore(id model.Identity, s itemState) {
	restoreStore(e.collection, id, s.collection)
	restoreStore(e.wishlist, id, s.wishlist)
	e.exclusions.Set(id, s.excluded)
}

func restoreStore(s *catalog.Store, id model.Identity, want *entry) {
	if want == nil {
		s.Remove(id)
		return
	}
	if s.Update(want.album) {
		return
	}
	s.InsertAt(want.pos, want.album)
}

// confirm sends t's remote calls in order. When a later call fails, earlier
// exclusion changes are reverted on a best-effort basis.
func (e *FlagEngine) confirm(ctx context.Context, t transition) error {
	for i, c := range t.calls {
		if err := e.send(ctx, t.id, c); err != nil {
			e.compensate(ctx, t.id, t.calls[:i])
			return err
		}
	}
	return nil
}

func (e *FlagEngine) send(ctx context.Context, id model.Identity, c remoteCall) error {
	switch c.kind {
	case callSetFlag:
		return e.remote.SetFlag(ctx, id, c.flag, c.value)
	case callDelete:
		return e.remote.DeleteFromCollection(ctx, id)
	case callExclude:
		return e.remote.ExcludeItem(ctx, id)
	case callInclude:
		return e.remote.IncludeItem(ctx, id)
	}
	return nil
}

func (e *FlagEngine) compensate(ctx context.Context, id model.Identity, done []remoteCall) {
	for i := len(done) - 1; i >= 0; i-- {
		var err error
		switch done[i].kind {
		case callInclude:
			err = e.remote.ExcludeItem(ctx, id)
		case callExclude:
			err = e.remote.IncludeItem(ctx, id)
		default:
			continue
		}
		if err != nil {
			e.log.Error("reverting remote call failed",
				"work_id", id.WorkID,
				"edition_id", id.EditionID,
				"call", done[i],
				"error", err,
			)
		}
	}
}

func (e *FlagEngine) markProcessing(id model.Identity, flag model.Flag, on bool) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	key := processingKey{id, flag}
	if on {
		e.processing[key] = struct{}{}
	} else {
		delete(e.processing, key)
	}
}
