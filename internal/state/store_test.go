package state

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/njoerd114/bdcollect/internal/catalog"
	"github.com/njoerd114/bdcollect/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleAlbums() []model.Album {
	tome := 3
	rating := 4.25
	var flags model.FlagSet
	flags = flags.With(model.FlagOwned, true).
		With(model.FlagRead, true).
		With(model.FlagLoaned, false)
	return []model.Album{
		{
			ID:       model.Identity{WorkID: 42, EditionID: 1},
			Title:    "L'Affaire Tournesol",
			SeriesID: 7,
			Tome:     &tome,
			Cover:    "tournesol.jpg",
			Rating:   &rating,
			Flags:    flags,
		},
		{
			ID:    model.Identity{WorkID: 42, EditionID: 2},
			Title: "L'Affaire Tournesol",
			Flags: model.FlagSet{}.With(model.FlagOwned, true),
		},
		{
			ID:    model.Identity{WorkID: 9, EditionID: 9},
			Title: "Astérix le Gaulois",
			Flags: model.FlagSet{}.With(model.FlagOwned, true).With(model.FlagFirstPrint, true),
		},
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	empty, err := s.IsEmpty(context.Background())
	if err != nil {
		t.Fatalf("IsEmpty after open: %v", err)
	}
	if !empty {
		t.Error("expected empty cache after open")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.SaveList(context.Background(), catalog.KindCollection, sampleAlbums()); err != nil {
		t.Fatalf("SaveList: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer func() { _ = s2.Close() }()
	got, err := s2.LoadList(context.Background(), catalog.KindCollection)
	if err != nil {
		t.Fatalf("LoadList: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len after reopen = %d, want 3", len(got))
	}
}

func TestSaveLoadList_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := sampleAlbums()

	if err := s.SaveList(ctx, catalog.KindCollection, want); err != nil {
		t.Fatalf("SaveList: %v", err)
	}
	got, err := s.LoadList(ctx, catalog.KindCollection)
	if err != nil {
		t.Fatalf("LoadList: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadList =\n%+v\nwant\n%+v", got, want)
	}
}

func TestSaveList_KeepsListsSeparate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	albums := sampleAlbums()

	wish := []model.Album{{
		ID:    model.Identity{WorkID: 77, EditionID: 1},
		Title: "Les Bijoux de la Castafiore",
		Flags: model.FlagSet{}.With(model.FlagOwned, false).With(model.FlagWanted, true),
	}}
	if err := s.SaveList(ctx, catalog.KindCollection, albums); err != nil {
		t.Fatalf("SaveList collection: %v", err)
	}
	if err := s.SaveList(ctx, catalog.KindWishlist, wish); err != nil {
		t.Fatalf("SaveList wishlist: %v", err)
	}

	// Overwriting the collection must not touch the wishlist.
	if err := s.SaveList(ctx, catalog.KindCollection, albums[:1]); err != nil {
		t.Fatalf("SaveList collection again: %v", err)
	}

	coll, _ := s.LoadList(ctx, catalog.KindCollection)
	if len(coll) != 1 {
		t.Errorf("collection len = %d, want 1", len(coll))
	}
	gotWish, _ := s.LoadList(ctx, catalog.KindWishlist)
	if !reflect.DeepEqual(gotWish, wish) {
		t.Errorf("wishlist = %+v, want %+v", gotWish, wish)
	}
}

func TestSaveList_PreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	albums := sampleAlbums()
	reversed := []model.Album{albums[2], albums[1], albums[0]}

	if err := s.SaveList(ctx, catalog.KindCollection, reversed); err != nil {
		t.Fatalf("SaveList: %v", err)
	}
	got, _ := s.LoadList(ctx, catalog.KindCollection)
	for i := range reversed {
		if got[i].ID != reversed[i].ID {
			t.Errorf("position %d = %v, want %v", i, got[i].ID, reversed[i].ID)
		}
	}
}

func TestExclusions_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := []model.Identity{{WorkID: 5, EditionID: 2}, {WorkID: 1, EditionID: 3}}

	if err := s.SaveExclusions(ctx, ids); err != nil {
		t.Fatalf("SaveExclusions: %v", err)
	}
	got, err := s.LoadExclusions(ctx)
	if err != nil {
		t.Fatalf("LoadExclusions: %v", err)
	}
	want := []model.Identity{{WorkID: 1, EditionID: 3}, {WorkID: 5, EditionID: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadExclusions = %v, want %v", got, want)
	}

	if err := s.SaveExclusions(ctx, nil); err != nil {
		t.Fatalf("SaveExclusions(nil): %v", err)
	}
	got, _ = s.LoadExclusions(ctx)
	if len(got) != 0 {
		t.Errorf("exclusions after reset = %v, want none", got)
	}
}

func TestLastRefresh(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.LastRefresh(ctx)
	if err != nil {
		t.Fatalf("LastRefresh on empty cache: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("LastRefresh = %v, want zero", got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SetLastRefresh(ctx, now); err != nil {
		t.Fatalf("SetLastRefresh: %v", err)
	}
	later := now.Add(time.Minute)
	if err := s.SetLastRefresh(ctx, later); err != nil {
		t.Fatalf("SetLastRefresh again: %v", err)
	}
	got, err = s.LastRefresh(ctx)
	if err != nil {
		t.Fatalf("LastRefresh: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("LastRefresh = %v, want %v", got, later)
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.SaveList(ctx, catalog.KindCollection, sampleAlbums())
	_ = s.SaveExclusions(ctx, []model.Identity{{WorkID: 1, EditionID: 1}})
	_ = s.SetLastRefresh(ctx, time.Now())

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	empty, _ := s.IsEmpty(ctx)
	if !empty {
		t.Error("albums remain after Clear")
	}
	ex, _ := s.LoadExclusions(ctx)
	if len(ex) != 0 {
		t.Errorf("exclusions after Clear = %v", ex)
	}
	last, _ := s.LastRefresh(ctx)
	if !last.IsZero() {
		t.Errorf("LastRefresh after Clear = %v, want zero", last)
	}
}

func TestFlagsEncoding(t *testing.T) {
	var fs model.FlagSet
	fs = fs.With(model.FlagOwned, true).With(model.FlagWanted, false).With(model.FlagExcludedFromTracking, true)

	enc := encodeFlags(fs)
	if enc != "ON------O" {
		t.Errorf("encodeFlags = %q, want %q", enc, "ON------O")
	}
	if got := decodeFlags(enc); got != fs {
		t.Errorf("decodeFlags(%q) = %v, want %v", enc, got, fs)
	}
	// A shorter legacy value leaves the missing flags absent.
	if got := decodeFlags("O"); got != (model.FlagSet{}).With(model.FlagOwned, true) {
		t.Errorf("decodeFlags(short) = %v", got)
	}
}
