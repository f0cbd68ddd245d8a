package roadmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/learntube/learntube/internal/metrics"
	"github.com/learntube/learntube/internal/storage"
)

// levelTemplates are emitted in order for every category.
var levelTemplates = []struct {
	level       string
	title       string
	description string
}{
	{"Beginner", "%s - Getting Started", "Learn the fundamentals of %s with beginner-friendly tutorials and projects."},
	{"Intermediate", "%s - Building Skills", "Enhance your %s skills with intermediate concepts and real-world applications."},
	{"Advanced", "%s - Mastering Concepts", "Master advanced %s techniques and build professional-level projects."},
}

// Engine owns roadmap generation, step progression and per-step content.
type Engine struct {
	store       DocumentStore
	recommender Recommender
	prefetch    Prefetcher
	clock       Clock
	logger      *slog.Logger

	inflight singleflight.Group
}

// NewEngine creates an Engine.
func NewEngine(store DocumentStore, rec Recommender) *Engine {
	return NewEngineWithClock(store, rec, realClock{})
}

// NewEngineWithClock creates an Engine with a custom clock (for testing).
func NewEngineWithClock(store DocumentStore, rec Recommender, clock Clock) *Engine {
	return &Engine{
		store:       store,
		recommender: rec,
		clock:       clock,
		logger:      slog.Default(),
	}
}

// SetPrefetcher enables background content resolution for steps activated
// by CompleteStepAndMoveNext.
func (e *Engine) SetPrefetcher(p Prefetcher) {
	e.prefetch = p
}

// GenerateRoadmap creates three steps per unique category, the first one in
// progress. An existing roadmap is returned unchanged.
func (e *Engine) GenerateRoadmap(ctx context.Context, userID string, categories []string) ([]Step, error) {
	unique := dedupe(categories)
	if len(unique) == 0 {
		return nil, ErrNoCategories
	}

	existing, err := e.listSteps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking existing roadmap: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	now := e.clock.Now().UTC()
	steps := make([]Step, 0, len(unique)*len(levelTemplates))
	n := 1
	for _, cat := range unique {
		for _, tpl := range levelTemplates {
			status := StatusNotStarted
			if n == 1 {
				status = StatusInProgress
			}
			steps = append(steps, Step{
				ID:          uuid.NewString(),
				UserID:      userID,
				StepNumber:  n,
				Title:       fmt.Sprintf(tpl.title, cat),
				Description: fmt.Sprintf(tpl.description, cat),
				Category:    cat,
				Level:       tpl.level,
				Status:      status,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			n++
		}
	}

	// Sequential so a partial failure leaves a numbered prefix.
	for _, s := range steps {
		if err := e.store.Create(ctx, storage.CollectionSteps, s.ID, s); err != nil {
			return nil, fmt.Errorf("creating step %d: %w", s.StepNumber, err)
		}
	}
	e.logger.Info("roadmap generated", "user", userID, "categories", len(unique), "steps", len(steps))
	return steps, nil
}

// GetRoadmapSteps returns the user's steps by step number, or an empty slice
// when they cannot be read.
func (e *Engine) GetRoadmapSteps(ctx context.Context, userID string) []Step {
	steps, err := e.listSteps(ctx, userID)
	if err != nil {
		e.logger.Warn("listing roadmap steps failed", "user", userID, "error", err)
		return []Step{}
	}
	return steps
}

// GetCurrentStep returns the first step that is not completed, or nil.
func (e *Engine) GetCurrentStep(ctx context.Context, userID string) *Step {
	for _, s := range e.GetRoadmapSteps(ctx, userID) {
		if s.Status != StatusCompleted {
			return &s
		}
	}
	return nil
}

// GetStep loads a single step.
func (e *Engine) GetStep(ctx context.Context, stepID string) (Step, error) {
	rec, err := e.store.Get(ctx, storage.CollectionSteps, stepID)
	if err != nil {
		return Step{}, err
	}
	var s Step
	if err := rec.Decode(&s); err != nil {
		return Step{}, fmt.Errorf("decoding step %s: %w", stepID, err)
	}
	s.ID = rec.ID
	return s, nil
}

// UpdateStepStatus sets status and stamps completedAt on completion. Prior
// state is not checked.
func (e *Engine) UpdateStepStatus(ctx context.Context, stepID string, status Status) (Step, error) {
	if !status.Valid() {
		return Step{}, fmt.Errorf("%q: %w", status, ErrInvalidStatus)
	}
	now := e.clock.Now().UTC()
	patch := map[string]any{"status": status, "updatedAt": now}
	if status == StatusCompleted {
		patch["completedAt"] = now
	}
	if err := e.store.Update(ctx, storage.CollectionSteps, stepID, patch); err != nil {
		return Step{}, fmt.Errorf("updating step %s: %w", stepID, err)
	}
	metrics.StepTransitions.WithLabelValues(string(status)).Inc()
	return e.GetStep(ctx, stepID)
}

// CompleteStepAndMoveNext completes stepID and activates the step after it.
// It returns the successor, or nil when the roadmap is finished. A successor
// that is already completed is returned as is.
func (e *Engine) CompleteStepAndMoveNext(ctx context.Context, userID, stepID string) (*Step, error) {
	if _, err := e.ownedStep(ctx, userID, stepID); err != nil {
		return nil, err
	}
	if _, err := e.UpdateStepStatus(ctx, stepID, StatusCompleted); err != nil {
		return nil, err
	}

	steps, err := e.listSteps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing steps after completion: %w", err)
	}
	idx := -1
	for i, s := range steps {
		if s.ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(steps)-1 {
		return nil, nil
	}

	next := steps[idx+1]
	if next.Status != StatusCompleted {
		if next, err = e.UpdateStepStatus(ctx, next.ID, StatusInProgress); err != nil {
			return nil, err
		}
	}

	if e.prefetch != nil && !next.PlaylistsFetched {
		if err := e.prefetch.EnqueuePrefetch(ctx, next.ID); err != nil {
			e.logger.Warn("scheduling content prefetch failed", "step", next.ID, "error", err)
		}
	}
	return &next, nil
}

// SelectStep makes an already-unlocked step the active one. Steps that were
// never activated are rejected; completedAt is left untouched.
func (e *Engine) SelectStep(ctx context.Context, userID, stepID string) (Step, error) {
	s, err := e.ownedStep(ctx, userID, stepID)
	if err != nil {
		return Step{}, err
	}
	switch s.Status {
	case StatusNotStarted:
		return Step{}, ErrStepLocked
	case StatusInProgress:
		return s, nil
	}

	patch := map[string]any{"status": StatusInProgress, "updatedAt": e.clock.Now().UTC()}
	if err := e.store.Update(ctx, storage.CollectionSteps, stepID, patch); err != nil {
		return Step{}, fmt.Errorf("selecting step %s: %w", stepID, err)
	}
	metrics.StepTransitions.WithLabelValues(string(StatusInProgress)).Inc()
	return e.GetStep(ctx, stepID)
}

// DeleteRoadmap removes the user's steps and saved videos. Individual delete
// failures are logged and skipped.
func (e *Engine) DeleteRoadmap(ctx context.Context, userID string) error {
	steps, err := e.listSteps(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing steps for deletion: %w", err)
	}
	for _, s := range steps {
		if err := e.store.Delete(ctx, storage.CollectionSteps, s.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("deleting step failed", "step", s.ID, "error", err)
		}
	}

	videos, err := e.store.List(ctx, storage.CollectionVideos, storage.Query{
		Filters: []storage.Filter{storage.Eq("userId", userID)},
	})
	if err != nil {
		e.logger.Warn("listing saved videos for deletion failed", "user", userID, "error", err)
		return nil
	}
	for _, v := range videos {
		if err := e.store.Delete(ctx, storage.CollectionVideos, v.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("deleting saved video failed", "video", v.ID, "error", err)
		}
	}
	e.logger.Info("roadmap deleted", "user", userID, "steps", len(steps), "videos", len(videos))
	return nil
}

// ReinitializeUserLearningData replaces the user's roadmap after a category
// change and eagerly resolves content for the new first step. Only the delete
// and regenerate phases can fail the call. Steps that survive the best-effort
// delete fail it too, since GenerateRoadmap would hand them back unchanged.
func (e *Engine) ReinitializeUserLearningData(ctx context.Context, userID string, categories []string) (bool, error) {
	if err := e.DeleteRoadmap(ctx, userID); err != nil {
		return false, err
	}
	left, err := e.listSteps(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking roadmap deletion: %w", err)
	}
	if len(left) > 0 {
		return false, fmt.Errorf("%d old steps could not be deleted for user %s", len(left), userID)
	}
	steps, err := e.GenerateRoadmap(ctx, userID, categories)
	if err != nil {
		return false, fmt.Errorf("regenerating roadmap: %w", err)
	}
	if len(steps) > 0 {
		if _, err := e.FetchAndSavePlaylistsForStep(ctx, steps[0]); err != nil {
			e.logger.Warn("first step content prefetch failed", "step", steps[0].ID, "error", err)
		}
	}
	return true, nil
}

func (e *Engine) ownedStep(ctx context.Context, userID, stepID string) (Step, error) {
	s, err := e.GetStep(ctx, stepID)
	if err != nil {
		return Step{}, err
	}
	if s.UserID != userID {
		return Step{}, storage.ErrNotFound
	}
	return s, nil
}

func (e *Engine) listSteps(ctx context.Context, userID string) ([]Step, error) {
	recs, err := e.store.List(ctx, storage.CollectionSteps, storage.Query{
		Filters: []storage.Filter{storage.Eq("userId", userID)},
		OrderBy: "stepNumber",
	})
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(recs))
	for _, r := range recs {
		var s Step
		if err := r.Decode(&s); err != nil {
			return nil, fmt.Errorf("decoding step %s: %w", r.ID, err)
		}
		s.ID = r.ID
		steps = append(steps, s)
	}
	return steps, nil
}

// dedupe trims names and drops blanks and repeats, keeping first occurrence order.
func dedupe(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
