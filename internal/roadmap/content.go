package roadmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/learntube/learntube/internal/metrics"
	"github.com/learntube/learntube/internal/storage"
	"github.com/learntube/learntube/internal/youtube"
)

const platformYouTube = "YouTube"

// FetchAndSavePlaylistsForStep resolves content for a step at most once. A
// step already marked fetched is served from storage. Otherwise courses are
// requested for the step's category, persisted, and only then is the step
// flagged. An empty resolution leaves the step unflagged so a later visit
// retries. Concurrent calls for one step share a single resolution, and the
// flag is set with a compare-and-set so a second process racing on the same
// step discards its own rows instead of doubling them. The shared
// resolution is detached from the first caller's cancellation so the
// callers that joined it still get a result.
func (e *Engine) FetchAndSavePlaylistsForStep(ctx context.Context, step Step) ([]SavedVideo, error) {
	v, err, _ := e.inflight.Do(step.ID, func() (any, error) {
		return e.resolve(context.WithoutCancel(ctx), step.ID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]SavedVideo), nil
}

// RefreshPlaylistsForStep discards a step's saved content and resolves it again.
func (e *Engine) RefreshPlaylistsForStep(ctx context.Context, stepID string) ([]SavedVideo, error) {
	step, err := e.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	existing, err := e.savedVideos(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("listing saved videos: %w", err)
	}
	e.deleteVideos(ctx, existing)

	patch := map[string]any{"playlistsFetched": false, "updatedAt": e.clock.Now().UTC()}
	if err := e.store.Update(ctx, storage.CollectionSteps, stepID, patch); err != nil {
		return nil, fmt.Errorf("clearing fetched flag: %w", err)
	}
	step.PlaylistsFetched = false
	return e.FetchAndSavePlaylistsForStep(ctx, step)
}

// ResolveStep resolves content for a step by id. It returns ErrNoContent when
// nothing could be resolved, so background callers can retry later.
func (e *Engine) ResolveStep(ctx context.Context, stepID string) (int, error) {
	step, err := e.GetStep(ctx, stepID)
	if err != nil {
		return 0, err
	}
	videos, err := e.FetchAndSavePlaylistsForStep(ctx, step)
	if err != nil {
		return 0, err
	}
	if len(videos) == 0 {
		return 0, ErrNoContent
	}
	return len(videos), nil
}

// GetSavedVideosForStep returns saved content in creation order, or an empty
// slice when it cannot be read.
func (e *Engine) GetSavedVideosForStep(ctx context.Context, stepID string) []SavedVideo {
	videos, err := e.savedVideos(ctx, stepID)
	if err != nil {
		e.logger.Warn("listing saved videos failed", "step", stepID, "error", err)
		return []SavedVideo{}
	}
	return videos
}

func (e *Engine) resolve(ctx context.Context, stepID string) ([]SavedVideo, error) {
	// Re-read so a flag set by an earlier caller is honored.
	step, err := e.GetStep(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("loading step %s: %w", stepID, err)
	}
	if step.PlaylistsFetched {
		metrics.ContentResolutions.WithLabelValues("already_fetched").Inc()
		return e.savedVideos(ctx, stepID)
	}

	courses := e.recommender.GetCourseRecommendations(ctx, []string{step.Category})
	if len(courses) == 0 {
		metrics.ContentResolutions.WithLabelValues("empty").Inc()
		e.logger.Info("no content found for step", "step", stepID, "category", step.Category)
		return []SavedVideo{}, nil
	}

	now := e.clock.Now().UTC()
	saved := make([]SavedVideo, 0, len(courses))
	for _, c := range courses {
		v := videoFromCourse(step, c)
		v.CreatedAt = now
		if err := e.store.Create(ctx, storage.CollectionVideos, v.ID, v); err != nil {
			e.deleteVideos(ctx, saved)
			return nil, fmt.Errorf("saving video for step %s: %w", stepID, err)
		}
		saved = append(saved, v)
	}

	won, err := e.store.UpdateIf(ctx, storage.CollectionSteps, stepID,
		storage.Eq("playlistsFetched", false),
		map[string]any{"playlistsFetched": true, "updatedAt": now},
	)
	if err != nil {
		e.deleteVideos(ctx, saved)
		return nil, fmt.Errorf("marking step %s fetched: %w", stepID, err)
	}
	if !won {
		metrics.ContentResolutions.WithLabelValues("lost_race").Inc()
		e.logger.Info("step content resolved elsewhere, discarding duplicate", "step", stepID)
		e.deleteVideos(ctx, saved)
		return e.savedVideos(ctx, stepID)
	}

	metrics.ContentResolutions.WithLabelValues("resolved").Inc()
	e.logger.Info("step content saved", "step", stepID, "videos", len(saved))
	return saved, nil
}

func (e *Engine) savedVideos(ctx context.Context, stepID string) ([]SavedVideo, error) {
	recs, err := e.store.List(ctx, storage.CollectionVideos, storage.Query{
		Filters: []storage.Filter{storage.Eq("stepId", stepID)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]SavedVideo, 0, len(recs))
	for _, r := range recs {
		var v SavedVideo
		if err := r.Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding video %s: %w", r.ID, err)
		}
		v.ID = r.ID
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) deleteVideos(ctx context.Context, videos []SavedVideo) {
	for _, v := range videos {
		if err := e.store.Delete(ctx, storage.CollectionVideos, v.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("deleting saved video failed", "video", v.ID, "error", err)
		}
	}
}

func videoFromCourse(step Step, c youtube.Course) SavedVideo {
	level := step.Level
	if level == "" {
		level = c.Level
	}
	typ := c.Type
	if typ == "" {
		typ = "playlist"
	}
	return SavedVideo{
		ID:           uuid.NewString(),
		UserID:       step.UserID,
		StepID:       step.ID,
		StepNumber:   step.StepNumber,
		PlaylistID:   playlistID(c),
		Title:        c.Title,
		Description:  c.Description,
		ThumbnailURL: c.ThumbnailURL,
		ChannelTitle: c.ChannelTitle,
		VideoCount:   c.VideoCount,
		Platform:     platformYouTube,
		URL:          c.URL,
		Level:        level,
		Type:         typ,
	}
}

// playlistID prefers the course id, then the list= parameter of its URL,
// then a fresh id.
func playlistID(c youtube.Course) string {
	if c.ID != "" {
		return c.ID
	}
	if _, after, ok := strings.Cut(c.URL, "list="); ok {
		if id, _, _ := strings.Cut(after, "&"); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
