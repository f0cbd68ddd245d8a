package roadmap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/learntube/learntube/internal/storage"
	"github.com/learntube/learntube/internal/youtube"
)

var ctx = context.Background()

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRecommender struct {
	courses []youtube.Course
	calls   atomic.Int32
	hook    func()
}

func (f *fakeRecommender) GetCourseRecommendations(_ context.Context, categories []string) []youtube.Course {
	f.calls.Add(1)
	if f.hook != nil {
		f.hook()
	}
	return append([]youtube.Course(nil), f.courses...)
}

type fakePrefetcher struct {
	mu    sync.Mutex
	steps []string
	err   error
}

func (f *fakePrefetcher) EnqueuePrefetch(_ context.Context, stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, stepID)
	return f.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, rec *fakeRecommender) (*Engine, *storage.Store, *fakeClock) {
	t.Helper()
	store := openTestStore(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	if rec == nil {
		rec = &fakeRecommender{}
	}
	return NewEngineWithClock(store, rec, clock), store, clock
}

func playlistCourse(id string) youtube.Course {
	return youtube.Course{
		ID:           id,
		Title:        "Course " + id,
		Description:  "desc",
		ChannelTitle: "chan",
		ThumbnailURL: "https://img/" + id,
		VideoCount:   20,
		URL:          youtube.PlaylistURL(id),
		Type:         "playlist",
		Level:        "Intermediate",
	}
}

func TestGenerateRoadmap_NumberingAndTemplates(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)

	steps, err := e.GenerateRoadmap(ctx, "u1", []string{"Go", "Design", "Go", " ", "Music"})
	if err != nil {
		t.Fatalf("GenerateRoadmap: %v", err)
	}
	if len(steps) != 9 {
		t.Fatalf("steps = %d, want 9 (three unique categories)", len(steps))
	}

	wantCats := []string{"Go", "Design", "Music"}
	wantSuffix := []string{"Getting Started", "Building Skills", "Mastering Concepts"}
	wantLevel := []string{"Beginner", "Intermediate", "Advanced"}
	for i, s := range steps {
		if s.StepNumber != i+1 {
			t.Errorf("steps[%d].StepNumber = %d", i, s.StepNumber)
		}
		if s.Category != wantCats[i/3] {
			t.Errorf("steps[%d].Category = %q, want %q", i, s.Category, wantCats[i/3])
		}
		if !strings.HasSuffix(s.Title, wantSuffix[i%3]) || s.Level != wantLevel[i%3] {
			t.Errorf("steps[%d] = %q/%q", i, s.Title, s.Level)
		}
		wantStatus := StatusNotStarted
		if i == 0 {
			wantStatus = StatusInProgress
		}
		if s.Status != wantStatus {
			t.Errorf("steps[%d].Status = %s, want %s", i, s.Status, wantStatus)
		}
		if s.PlaylistsFetched {
			t.Errorf("steps[%d] marked fetched at creation", i)
		}
	}

	stored := e.GetRoadmapSteps(ctx, "u1")
	if len(stored) != 9 || stored[8].StepNumber != 9 || stored[0].ID != steps[0].ID {
		t.Errorf("stored roadmap does not match generated one")
	}
}

func TestGenerateRoadmap_Idempotent(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)

	first, err := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	if err != nil {
		t.Fatalf("GenerateRoadmap: %v", err)
	}
	second, err := e.GenerateRoadmap(ctx, "u1", []string{"Rust", "Python"})
	if err != nil {
		t.Fatalf("second GenerateRoadmap: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("second call returned %d steps, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("step %d id changed on second call", i)
		}
	}
}

func TestGenerateRoadmap_NoCategories(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	if _, err := e.GenerateRoadmap(ctx, "u1", []string{"", "  "}); !errors.Is(err, ErrNoCategories) {
		t.Errorf("err = %v, want ErrNoCategories", err)
	}
}

func TestGenerateRoadmap_ScopedPerUser(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	steps, err := e.GenerateRoadmap(ctx, "u2", []string{"Art", "Music"})
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 6 || steps[0].StepNumber != 1 {
		t.Errorf("u2 roadmap = %d steps starting at %d", len(steps), steps[0].StepNumber)
	}
}

func TestGetCurrentStep(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	if cur := e.GetCurrentStep(ctx, "nobody"); cur != nil {
		t.Errorf("current = %+v, want nil for empty roadmap", cur)
	}

	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	if cur := e.GetCurrentStep(ctx, "u1"); cur == nil || cur.ID != steps[0].ID {
		t.Fatalf("current = %+v, want step 1", cur)
	}

	for _, s := range steps {
		if _, err := e.UpdateStepStatus(ctx, s.ID, StatusCompleted); err != nil {
			t.Fatal(err)
		}
	}
	if cur := e.GetCurrentStep(ctx, "u1"); cur != nil {
		t.Errorf("current = %+v, want nil when all completed", cur)
	}
}

func TestUpdateStepStatus(t *testing.T) {
	e, _, clock := newTestEngine(t, nil)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	clock.Advance(time.Hour)
	s, err := e.UpdateStepStatus(ctx, steps[2].ID, StatusCompleted)
	if err != nil {
		t.Fatalf("UpdateStepStatus: %v", err)
	}
	if s.Status != StatusCompleted || s.CompletedAt == nil || !s.CompletedAt.Equal(clock.Now()) {
		t.Errorf("step = %+v, want completed with completedAt stamped", s)
	}
	if !s.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("updatedAt = %v, want %v", s.UpdatedAt, clock.Now())
	}

	// No prior-state validation: completed can go back to not_started.
	s, err = e.UpdateStepStatus(ctx, steps[2].ID, StatusNotStarted)
	if err != nil || s.Status != StatusNotStarted {
		t.Errorf("status = %s, err = %v", s.Status, err)
	}

	if _, err := e.UpdateStepStatus(ctx, "missing", StatusCompleted); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := e.UpdateStepStatus(ctx, steps[0].ID, "paused"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestCompleteStepAndMoveNext(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	pf := &fakePrefetcher{}
	e.SetPrefetcher(pf)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	next, err := e.CompleteStepAndMoveNext(ctx, "u1", steps[0].ID)
	if err != nil {
		t.Fatalf("CompleteStepAndMoveNext: %v", err)
	}
	if next == nil || next.ID != steps[1].ID || next.Status != StatusInProgress {
		t.Fatalf("next = %+v, want step 2 in progress", next)
	}
	prev, _ := e.GetStep(ctx, steps[0].ID)
	if prev.Status != StatusCompleted || prev.CompletedAt == nil {
		t.Errorf("step 1 = %+v, want completed", prev)
	}
	if len(pf.steps) != 1 || pf.steps[0] != steps[1].ID {
		t.Errorf("prefetched = %v, want step 2", pf.steps)
	}

	// Repeating with the completed step does not advance further.
	again, err := e.CompleteStepAndMoveNext(ctx, "u1", steps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.ID != steps[1].ID {
		t.Errorf("again = %+v, want step 2", again)
	}
	third, _ := e.GetStep(ctx, steps[2].ID)
	if third.Status != StatusNotStarted {
		t.Errorf("step 3 status = %s, want not_started", third.Status)
	}

	e.CompleteStepAndMoveNext(ctx, "u1", steps[1].ID)
	last, err := e.CompleteStepAndMoveNext(ctx, "u1", steps[2].ID)
	if err != nil || last != nil {
		t.Errorf("last = %+v, err = %v; want nil, nil at the end", last, err)
	}
}

func TestCompleteStepAndMoveNext_KeepsCompletedSuccessor(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	e.UpdateStepStatus(ctx, steps[1].ID, StatusCompleted)

	next, err := e.CompleteStepAndMoveNext(ctx, "u1", steps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.Status != StatusCompleted {
		t.Errorf("next = %+v, want the completed successor left as is", next)
	}
}

func TestCompleteStepAndMoveNext_OtherUser(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	if _, err := e.CompleteStepAndMoveNext(ctx, "u2", steps[0].ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteStepAndMoveNext_PrefetchFailureIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	e.SetPrefetcher(&fakePrefetcher{err: errors.New("queue down")})
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	if next, err := e.CompleteStepAndMoveNext(ctx, "u1", steps[0].ID); err != nil || next == nil {
		t.Errorf("next = %v, err = %v; want success despite prefetch error", next, err)
	}
}

func TestSelectStep(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	e.CompleteStepAndMoveNext(ctx, "u1", steps[0].ID)

	if _, err := e.SelectStep(ctx, "u1", steps[2].ID); !errors.Is(err, ErrStepLocked) {
		t.Errorf("selecting not_started step: err = %v, want ErrStepLocked", err)
	}

	s, err := e.SelectStep(ctx, "u1", steps[0].ID)
	if err != nil {
		t.Fatalf("SelectStep: %v", err)
	}
	if s.Status != StatusInProgress || s.CompletedAt == nil {
		t.Errorf("step = %+v, want in_progress with completedAt kept", s)
	}
}

func TestFetchAndSavePlaylistsForStep(t *testing.T) {
	rec := &fakeRecommender{courses: []youtube.Course{playlistCourse("PLgood")}}
	e, _, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Web Development"})

	videos, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	if err != nil {
		t.Fatalf("FetchAndSavePlaylistsForStep: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("videos = %d, want 1", len(videos))
	}
	v := videos[0]
	if v.StepID != steps[0].ID || v.UserID != "u1" || v.StepNumber != 1 {
		t.Errorf("video not linked to step: %+v", v)
	}
	if v.PlaylistID != "PLgood" || v.Platform != "YouTube" || v.Level != "Beginner" || v.VideoCount != 20 {
		t.Errorf("video = %+v", v)
	}

	step, _ := e.GetStep(ctx, steps[0].ID)
	if !step.PlaylistsFetched {
		t.Error("playlistsFetched = false after successful resolution")
	}

	// Second call is served from storage without asking for content again.
	again, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.calls.Load() != 1 {
		t.Errorf("recommender calls = %d, want 1", rec.calls.Load())
	}
	if len(again) != 1 || again[0].ID != v.ID {
		t.Errorf("second call returned %+v, want the same saved set", again)
	}
}

func TestFetchAndSavePlaylistsForStep_EmptyLeavesRetryable(t *testing.T) {
	rec := &fakeRecommender{}
	e, _, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	videos, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	if err != nil || len(videos) != 0 {
		t.Fatalf("videos = %v, err = %v", videos, err)
	}
	step, _ := e.GetStep(ctx, steps[0].ID)
	if step.PlaylistsFetched {
		t.Error("empty resolution must not mark the step fetched")
	}

	rec.courses = []youtube.Course{playlistCourse("PL1")}
	videos, _ = e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	if len(videos) != 1 || rec.calls.Load() != 2 {
		t.Errorf("retry resolved %d videos with %d calls", len(videos), rec.calls.Load())
	}
}

func TestFetchAndSavePlaylistsForStep_ConcurrentCallsResolveOnce(t *testing.T) {
	release := make(chan struct{})
	rec := &fakeRecommender{
		courses: []youtube.Course{playlistCourse("PL1"), playlistCourse("PL2")},
		hook:    func() { <-release },
	}
	e, store, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.FetchAndSavePlaylistsForStep(ctx, steps[0])
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	recs, _ := store.List(ctx, storage.CollectionVideos, storage.Query{})
	if len(recs) != 2 {
		t.Errorf("saved videos = %d, want 2 (no duplicates)", len(recs))
	}
}

func TestFetchAndSavePlaylistsForStep_LostRaceDiscardsOwnRows(t *testing.T) {
	rec := &fakeRecommender{courses: []youtube.Course{playlistCourse("MINE")}}
	e, store, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	// Another writer resolves the step while this one is asking for content.
	rec.hook = func() {
		other := SavedVideo{ID: "other-1", UserID: "u1", StepID: steps[0].ID, PlaylistID: "THEIRS", Platform: "YouTube"}
		if err := store.Create(ctx, storage.CollectionVideos, other.ID, other); err != nil {
			t.Errorf("seeding competing video: %v", err)
		}
		if err := store.Update(ctx, storage.CollectionSteps, steps[0].ID, map[string]any{"playlistsFetched": true}); err != nil {
			t.Errorf("flagging step: %v", err)
		}
	}

	videos, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 1 || videos[0].PlaylistID != "THEIRS" {
		t.Errorf("videos = %+v, want only the winner's rows", videos)
	}
	all, _ := store.List(ctx, storage.CollectionVideos, storage.Query{})
	if len(all) != 1 {
		t.Errorf("stored videos = %d, want 1", len(all))
	}
}

func TestFetchAndSavePlaylistsForStep_SurvivesFirstCallerCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &fakeRecommender{
		courses: []youtube.Course{playlistCourse("PL1")},
		hook: func() {
			close(entered)
			<-release
		},
	}
	e, _, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	firstCtx, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.FetchAndSavePlaylistsForStep(firstCtx, steps[0])
		firstErr <- err
	}()
	<-entered

	type result struct {
		videos []SavedVideo
		err    error
	}
	second := make(chan result, 1)
	go func() {
		v, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0])
		second <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	got := <-second
	if got.err != nil || len(got.videos) != 1 {
		t.Errorf("joined caller = %d videos, %v; want 1, nil", len(got.videos), got.err)
	}
	if err := <-firstErr; err != nil {
		t.Errorf("cancelled caller err = %v", err)
	}
	if s, _ := e.GetStep(ctx, steps[0].ID); !s.PlaylistsFetched {
		t.Error("step not flagged after a cancelled first caller")
	}
}

func TestPlaylistID(t *testing.T) {
	tests := []struct {
		course youtube.Course
		want   string
	}{
		{youtube.Course{ID: "PLid", URL: "https://www.youtube.com/playlist?list=PLurl"}, "PLid"},
		{youtube.Course{URL: "https://www.youtube.com/playlist?list=PLurl&index=2"}, "PLurl"},
	}
	for _, tt := range tests {
		if got := playlistID(tt.course); got != tt.want {
			t.Errorf("playlistID(%+v) = %q, want %q", tt.course, got, tt.want)
		}
	}
	if got := playlistID(youtube.Course{URL: "https://example.com"}); len(got) != 36 {
		t.Errorf("synthesized id = %q, want a uuid", got)
	}
}

func TestRefreshPlaylistsForStep(t *testing.T) {
	rec := &fakeRecommender{courses: []youtube.Course{playlistCourse("OLD")}}
	e, _, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	e.FetchAndSavePlaylistsForStep(ctx, steps[0])

	rec.courses = []youtube.Course{playlistCourse("NEW1"), playlistCourse("NEW2")}
	videos, err := e.RefreshPlaylistsForStep(ctx, steps[0].ID)
	if err != nil {
		t.Fatalf("RefreshPlaylistsForStep: %v", err)
	}
	if len(videos) != 2 || videos[0].PlaylistID != "NEW1" {
		t.Errorf("videos = %+v", videos)
	}
	if saved := e.GetSavedVideosForStep(ctx, steps[0].ID); len(saved) != 2 {
		t.Errorf("saved = %d, want old content replaced", len(saved))
	}
}

func TestResolveStep(t *testing.T) {
	rec := &fakeRecommender{}
	e, _, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})

	if _, err := e.ResolveStep(ctx, steps[1].ID); !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
	rec.courses = []youtube.Course{playlistCourse("A")}
	if n, err := e.ResolveStep(ctx, steps[1].ID); err != nil || n != 1 {
		t.Errorf("n = %d, err = %v", n, err)
	}
	if _, err := e.ResolveStep(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRoadmap(t *testing.T) {
	rec := &fakeRecommender{courses: []youtube.Course{playlistCourse("A")}}
	e, store, _ := newTestEngine(t, rec)
	steps, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	e.FetchAndSavePlaylistsForStep(ctx, steps[0])
	other, _ := e.GenerateRoadmap(ctx, "u2", []string{"Art"})
	e.FetchAndSavePlaylistsForStep(ctx, other[0])

	if err := e.DeleteRoadmap(ctx, "u1"); err != nil {
		t.Fatalf("DeleteRoadmap: %v", err)
	}
	if got := e.GetRoadmapSteps(ctx, "u1"); len(got) != 0 {
		t.Errorf("u1 steps = %d after delete", len(got))
	}
	vids, _ := store.List(ctx, storage.CollectionVideos, storage.Query{Filters: []storage.Filter{storage.Eq("userId", "u1")}})
	if len(vids) != 0 {
		t.Errorf("u1 videos = %d after delete", len(vids))
	}
	if got := e.GetRoadmapSteps(ctx, "u2"); len(got) != 3 {
		t.Errorf("u2 steps = %d, want untouched", len(got))
	}
}

func TestReinitializeUserLearningData(t *testing.T) {
	rec := &fakeRecommender{courses: []youtube.Course{playlistCourse("A")}}
	e, _, _ := newTestEngine(t, rec)
	old, _ := e.GenerateRoadmap(ctx, "u1", []string{"Go"})
	e.CompleteStepAndMoveNext(ctx, "u1", old[0].ID)

	ok, err := e.ReinitializeUserLearningData(ctx, "u1", []string{"Art", "Music"})
	if err != nil || !ok {
		t.Fatalf("Reinitialize = %v, %v", ok, err)
	}
	steps := e.GetRoadmapSteps(ctx, "u1")
	if len(steps) != 6 || steps[0].Category != "Art" || steps[0].Status != StatusInProgress {
		t.Fatalf("new roadmap = %+v", steps)
	}
	if !steps[0].PlaylistsFetched {
		t.Error("first step content was not prefetched")
	}
	if got := e.GetSavedVideosForStep(ctx, old[0].ID); len(got) != 0 {
		t.Errorf("old step still has %d videos", len(got))
	}
}

func TestReinitializeUserLearningData_PrefetchFailureIsSoft(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeRecommender{})
	ok, err := e.ReinitializeUserLearningData(ctx, "u1", []string{"Go"})
	if err != nil || !ok {
		t.Errorf("Reinitialize = %v, %v; want success without content", ok, err)
	}
}

// failingStore wraps a Store and fails List or Delete for one collection.
type failingStore struct {
	*storage.Store
	failList   string
	failDelete string
}

func (f failingStore) Delete(ctx context.Context, collection, id string) error {
	if collection == f.failDelete {
		return fmt.Errorf("delete %s/%s: read-only", collection, id)
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f failingStore) List(ctx context.Context, collection string, q storage.Query) ([]storage.Record, error) {
	if collection == f.failList {
		return nil, fmt.Errorf("list %s: disk on fire", collection)
	}
	return f.Store.List(ctx, collection, q)
}

func TestGetRoadmapSteps_FailsSoft(t *testing.T) {
	e := NewEngine(failingStore{Store: openTestStore(t), failList: storage.CollectionSteps}, &fakeRecommender{})
	if got := e.GetRoadmapSteps(ctx, "u1"); got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
	if _, err := e.GenerateRoadmap(ctx, "u1", []string{"Go"}); err == nil {
		t.Error("GenerateRoadmap should fail hard when the existence check fails")
	}
}

func TestReinitializeUserLearningData_LeftoverStepsFail(t *testing.T) {
	store := openTestStore(t)
	e := NewEngine(failingStore{Store: store, failDelete: storage.CollectionSteps}, &fakeRecommender{})
	if _, err := e.GenerateRoadmap(ctx, "u1", []string{"Go"}); err != nil {
		t.Fatal(err)
	}

	ok, err := e.ReinitializeUserLearningData(ctx, "u1", []string{"Art"})
	if err == nil || ok {
		t.Fatalf("Reinitialize = %v, %v; want failure when old steps survive", ok, err)
	}
	if steps := e.GetRoadmapSteps(ctx, "u1"); len(steps) != 3 || steps[0].Category != "Go" {
		t.Errorf("steps = %+v, want the old roadmap untouched", steps)
	}
}
