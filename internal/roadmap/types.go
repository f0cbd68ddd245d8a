package roadmap

import (
	"context"
	"errors"
	"time"

	"github.com/learntube/learntube/internal/storage"
	"github.com/learntube/learntube/internal/youtube"
)

var (
	// ErrNoCategories is returned when a roadmap is requested for an empty category list.
	ErrNoCategories = errors.New("no categories")
	// ErrStepLocked is returned when selecting a step that was never activated.
	ErrStepLocked = errors.New("step is locked")
	// ErrNoContent is returned by ResolveStep when nothing could be resolved.
	ErrNoContent = errors.New("no content resolved")
	// ErrInvalidStatus is returned for a status outside the three known values.
	ErrInvalidStatus = errors.New("invalid step status")
)

// Status is the lifecycle position of a step.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Step is one category/level unit of a user's roadmap.
type Step struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	StepNumber       int        `json:"stepNumber"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Level            string     `json:"level"`
	Status           Status     `json:"status"`
	PlaylistsFetched bool       `json:"playlistsFetched"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// SavedVideo is a resolved content item attached to a step.
type SavedVideo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	StepID       string    `json:"stepId"`
	StepNumber   int       `json:"stepNumber"`
	PlaylistID   string    `json:"playlistId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	ChannelTitle string    `json:"channelTitle"`
	VideoCount   int64     `json:"videoCount"`
	Platform     string    `json:"platform"`
	URL          string    `json:"url"`
	Level        string    `json:"level"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DocumentStore defines the persistence operations the Engine needs.
// Implemented by storage.Store.
type DocumentStore interface {
	Create(ctx context.Context, collection, id string, fields any) error
	Get(ctx context.Context, collection, id string) (storage.Record, error)
	Update(ctx context.Context, collection, id string, patch any) error
	UpdateIf(ctx context.Context, collection, id string, cond storage.Filter, patch any) (bool, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, q storage.Query) ([]storage.Record, error)
}

// Recommender supplies verified courses for a category.
type Recommender interface {
	GetCourseRecommendations(ctx context.Context, categories []string) []youtube.Course
}

// Prefetcher schedules background content resolution for a step.
type Prefetcher interface {
	EnqueuePrefetch(ctx context.Context, stepID string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
