package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/repoatlas/repoatlas/internal/atlas"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "atlas.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func sampleView(host string, loc atlas.Location) *atlas.View {
	desc := "sample repo"
	return &atlas.View{
		Host:     host,
		Location: loc,
		Facts: &atlas.Facts{
			Description: &desc,
			Remotes:     map[string]string{"origin": "https://example.com/r.git"},
			Branches: map[string]atlas.Branch{
				"main": {Roots: []string{"root0"}, Leaf: "leaf0"},
			},
		},
	}
}

func TestUpsertView_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	view := sampleView("workstation", atlas.FsLocation("/data/a/proj/.git"))
	if _, err := s.UpsertView(ctx, view); err != nil {
		t.Fatalf("UpsertView failed: %v", err)
	}

	views, err := s.ListViews(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListViews failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}

	got := views[0]
	if got.Host != "workstation" {
		t.Errorf("host = %q", got.Host)
	}
	if got.Location != view.Location {
		t.Errorf("location = %v, want %v", got.Location, view.Location)
	}
	if got.Facts == nil {
		t.Fatal("facts lost in round trip")
	}
	if got.Facts.Description == nil || *got.Facts.Description != "sample repo" {
		t.Errorf("description = %v", got.Facts.Description)
	}
	if got.Facts.Branches["main"].Leaf != "leaf0" {
		t.Errorf("branch leaf = %q", got.Facts.Branches["main"].Leaf)
	}
}

func TestUpsertView_IdempotentReplace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	view := sampleView("workstation", atlas.FsLocation("/data/a/.git"))
	for i := 0; i < 3; i++ {
		if _, err := s.UpsertView(ctx, view); err != nil {
			t.Fatalf("UpsertView #%d failed: %v", i, err)
		}
	}

	count, err := s.CountViews(ctx)
	if err != nil {
		t.Fatalf("CountViews failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d after repeated upserts, want 1", count)
	}
}

func TestUpsertView_LastWriteWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	loc := atlas.FsLocation("/data/a/.git")
	first := sampleView("workstation", loc)
	if _, err := s.UpsertView(ctx, first); err != nil {
		t.Fatal(err)
	}

	// Second write records a failed inspection for the same key.
	failed := &atlas.View{Host: "workstation", Location: loc}
	if _, err := s.UpsertView(ctx, failed); err != nil {
		t.Fatal(err)
	}

	views, err := s.ListViews(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}
	if views[0].Facts != nil {
		t.Error("facts survived overwrite; last write must win")
	}
}

func TestUpsertView_NilFactsPersisted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	view := &atlas.View{
		Host:     "workstation",
		Location: atlas.NetLocation("https://example.com/broken.git"),
	}
	if _, err := s.UpsertView(ctx, view); err != nil {
		t.Fatalf("UpsertView failed: %v", err)
	}

	views, err := s.ListViews(ctx, Filter{Kind: "net"})
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}
	if views[0].Facts != nil {
		t.Error("failed inspection round-tripped with non-nil facts")
	}
}

func TestListViews_Filters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seeds := []*atlas.View{
		sampleView("alpha", atlas.FsLocation("/a/.git")),
		sampleView("alpha", atlas.NetLocation("https://example.com/a.git")),
		sampleView("beta", atlas.FsLocation("/b/.git")),
	}
	for _, v := range seeds {
		if _, err := s.UpsertView(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	byHost, err := s.ListViews(ctx, Filter{Host: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byHost) != 2 {
		t.Errorf("host filter returned %d, want 2", len(byHost))
	}

	byKind, err := s.ListViews(ctx, Filter{Kind: "net"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 1 {
		t.Errorf("kind filter returned %d, want 1", len(byKind))
	}

	both, err := s.ListViews(ctx, Filter{Host: "beta", Kind: "net"})
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 0 {
		t.Errorf("combined filter returned %d, want 0", len(both))
	}
}

func TestUpsertView_RejectsInvalid(t *testing.T) {
	s := testStore(t)

	invalid := &atlas.View{Location: atlas.FsLocation("/a/.git")} // no host
	if _, err := s.UpsertView(context.Background(), invalid); err == nil {
		t.Error("invalid view accepted")
	}
}

func TestOpen_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "atlas.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}
