package taxonomy

import (
	"context"
	"testing"

	"github.com/learntube/learntube/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	n, err := Seed(ctx, s)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if n != len(seed) {
		t.Errorf("created = %d, want %d", n, len(seed))
	}

	n, err = Seed(ctx, s)
	if err != nil || n != 0 {
		t.Errorf("second Seed created %d, err = %v; want 0, nil", n, err)
	}

	all, err := List(ctx, s, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(seed) {
		t.Errorf("stored = %d, want %d", len(all), len(seed))
	}
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	Seed(ctx, s)

	majors, _ := List(ctx, s, "major", "")
	if len(majors) != 1 || majors[0].OriginalID != "cse" || majors[0].ParentID != nil {
		t.Errorf("majors = %+v", majors)
	}

	subs, _ := List(ctx, s, "sub", "cse")
	want := []string{"web-dev", "cyber-security", "android", "embedded"}
	if len(subs) != len(want) {
		t.Fatalf("subs = %d, want %d", len(subs), len(want))
	}
	for i, c := range subs {
		if c.OriginalID != want[i] {
			t.Errorf("subs[%d] = %s, want %s (seed order)", i, c.OriginalID, want[i])
		}
	}

	niches, _ := List(ctx, s, "niche", "cyber-security")
	if len(niches) != 2 || niches[0].Name != "Bug Bounty" {
		t.Errorf("niches = %+v", niches)
	}
}
