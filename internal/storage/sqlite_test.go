package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var ctx = context.Background()

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type stepDoc struct {
	UserID           string `json:"userId"`
	StepNumber       int    `json:"stepNumber"`
	Status           string `json:"status"`
	PlaylistsFetched bool   `json:"playlistsFetched"`
}

// TestMigrationsIdempotent runs Open twice on the same directory and verifies
// no migration is applied twice.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected documents and jobs migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)

	want := stepDoc{UserID: "u1", StepNumber: 1, Status: "in_progress"}
	if err := s.Create(ctx, CollectionSteps, "s1", want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := s.Get(ctx, CollectionSteps, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got stepDoc
	if err := rec.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestCreate_Duplicate(t *testing.T) {
	s := openTestStore(t)

	if err := s.Create(ctx, CollectionUsers, "u1", map[string]any{"onboarded": false}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(ctx, CollectionUsers, "u1", map[string]any{"onboarded": true})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}

	// Same id in a different collection is fine.
	if err := s.Create(ctx, CollectionPreferences, "u1", map[string]any{}); err != nil {
		t.Errorf("Create in other collection: %v", err)
	}
}

func TestCreate_RejectsNonObject(t *testing.T) {
	s := openTestStore(t)
	if err := s.Create(ctx, CollectionUsers, "u1", []string{"a"}); err == nil {
		t.Fatal("expected error for array body")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(ctx, CollectionSteps, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_MergesPatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.Create(ctx, CollectionSteps, "s1", map[string]any{
		"userId": "u1", "status": "not_started", "completedAt": "2025-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Update(ctx, CollectionSteps, "s1", map[string]any{"status": "completed", "completedAt": nil}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, err := s.Get(ctx, CollectionSteps, "s1")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := rec.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "completed" {
		t.Errorf("status = %v, want completed", got["status"])
	}
	if got["userId"] != "u1" {
		t.Errorf("userId lost after patch: %v", got)
	}
	if _, ok := got["completedAt"]; ok {
		t.Errorf("null in patch should remove the field, got %v", got["completedAt"])
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(ctx, CollectionSteps, "missing", map[string]any{"status": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateIf_CompareAndSet(t *testing.T) {
	s := openTestStore(t)
	if err := s.Create(ctx, CollectionSteps, "s1", stepDoc{UserID: "u1", StepNumber: 1}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.UpdateIf(ctx, CollectionSteps, "s1", Eq("playlistsFetched", false), map[string]any{"playlistsFetched": true})
	if err != nil {
		t.Fatalf("first UpdateIf: %v", err)
	}
	if !ok {
		t.Fatal("first UpdateIf should win")
	}

	ok, err = s.UpdateIf(ctx, CollectionSteps, "s1", Eq("playlistsFetched", false), map[string]any{"playlistsFetched": true})
	if err != nil {
		t.Fatalf("second UpdateIf: %v", err)
	}
	if ok {
		t.Error("second UpdateIf should lose once the flag is set")
	}

	if _, err := s.UpdateIf(ctx, CollectionSteps, "missing", Eq("playlistsFetched", false), map[string]any{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	if err := s.Create(ctx, CollectionVideos, "v1", map[string]any{"stepId": "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, CollectionVideos, "v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, CollectionVideos, "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestList_FilterOrderLimit(t *testing.T) {
	s := openTestStore(t)

	// Insert out of order to prove ordering comes from the field.
	for _, n := range []int{3, 1, 2, 5, 4} {
		doc := stepDoc{UserID: "u1", StepNumber: n, Status: "not_started"}
		if n == 1 {
			doc.Status = "completed"
		}
		if err := s.Create(ctx, CollectionSteps, fmt.Sprintf("s%d", n), doc); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Create(ctx, CollectionSteps, "other", stepDoc{UserID: "u2", StepNumber: 1}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.List(ctx, CollectionSteps, Query{
		Filters: []Filter{Eq("userId", "u1")},
		OrderBy: "stepNumber",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("got %d records, want 5", len(recs))
	}
	for i, r := range recs {
		var d stepDoc
		if err := r.Decode(&d); err != nil {
			t.Fatal(err)
		}
		if d.StepNumber != i+1 {
			t.Errorf("recs[%d].StepNumber = %d, want %d", i, d.StepNumber, i+1)
		}
	}

	recs, err = s.List(ctx, CollectionSteps, Query{
		Filters: []Filter{
			Eq("userId", "u1"),
			{Field: "stepNumber", Op: OpGte, Value: 2},
			{Field: "status", Op: OpNe, Value: "completed"},
		},
		OrderBy: "stepNumber",
		Desc:    true,
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("List with range: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "s5" || recs[1].ID != "s4" {
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		t.Errorf("got ids %v, want [s5 s4]", ids)
	}
}

func TestList_BoolFilter(t *testing.T) {
	s := openTestStore(t)
	s.Create(ctx, CollectionSteps, "a", stepDoc{UserID: "u1", PlaylistsFetched: true})
	s.Create(ctx, CollectionSteps, "b", stepDoc{UserID: "u1", PlaylistsFetched: false})

	recs, err := s.List(ctx, CollectionSteps, Query{Filters: []Filter{Eq("playlistsFetched", true)}})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Errorf("expected only doc a, got %d records", len(recs))
	}
}

func TestList_RejectsInjection(t *testing.T) {
	s := openTestStore(t)
	_, err := s.List(ctx, CollectionSteps, Query{Filters: []Filter{Eq("userId') OR 1=1 --", "x")}})
	if err == nil {
		t.Fatal("expected invalid field error")
	}
	_, err = s.List(ctx, CollectionSteps, Query{Filters: []Filter{{Field: "userId", Op: "LIKE", Value: "%"}}})
	if err == nil {
		t.Fatal("expected invalid operator error")
	}
}

func TestJobs_ClaimCompleteFail(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnqueueJob(ctx, Job{ID: "j1", Type: "content_prefetch", PayloadJSON: `{"step_id":"s1"}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if job, err := s.ClaimNextJob(ctx, []string{"other"}); err != nil || job != nil {
		t.Fatalf("claim of other type = %v, %v; want nil, nil", job, err)
	}

	job, err := s.ClaimNextJob(ctx, []string{"content_prefetch"})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	if job.Status != "running" {
		t.Errorf("status = %q, want running", job.Status)
	}

	if again, _ := s.ClaimNextJob(ctx, []string{"content_prefetch"}); again != nil {
		t.Error("running job must not be claimed twice")
	}

	if err := s.FailJob(ctx, "j1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	status, _ := s.JobStatus(ctx, "j1")
	if status != "pending" {
		t.Errorf("status after first failure = %q, want pending", status)
	}

	// Backoff pushes run_after into the future.
	if again, _ := s.ClaimNextJob(ctx, []string{"content_prefetch"}); again != nil {
		t.Error("job in backoff must not be claimable")
	}

	s.now = func() time.Time { return time.Now().Add(time.Minute) }
	job, err = s.ClaimNextJob(ctx, []string{"content_prefetch"})
	if err != nil || job == nil {
		t.Fatalf("claim after backoff = %v, %v", job, err)
	}
	if err := s.FailJob(ctx, "j1", "boom again"); err != nil {
		t.Fatal(err)
	}
	status, _ = s.JobStatus(ctx, "j1")
	if status != "failed" {
		t.Errorf("status after max attempts = %q, want failed", status)
	}

	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}
