package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/roadmap"
	"github.com/learntube/learntube/internal/storage"
)

// ErrNoPreferences is returned when a user has not completed onboarding.
var ErrNoPreferences = errors.New("no preferences")

// Preferences is a user's onboarding choices.
type Preferences struct {
	UserID             string    `json:"userId"`
	SelectedCategories []string  `json:"selectedCategories"`
	Keywords           []string  `json:"keywords"`
	LearningContext    string    `json:"learningContext,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// User is the account document.
type User struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Onboarded bool      `json:"onboarded"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentStore defines the persistence operations the Service needs.
// Implemented by storage.Store.
type DocumentStore interface {
	Create(ctx context.Context, collection, id string, fields any) error
	Get(ctx context.Context, collection, id string) (storage.Record, error)
	Update(ctx context.Context, collection, id string, patch any) error
}

// Roadmaps is the roadmap engine surface preferences changes drive.
type Roadmaps interface {
	GenerateRoadmap(ctx context.Context, userID string, categories []string) ([]roadmap.Step, error)
	ReinitializeUserLearningData(ctx context.Context, userID string, categories []string) (bool, error)
}

// Service manages preferences and keeps the roadmap in step with them.
type Service struct {
	store    DocumentStore
	roadmaps Roadmaps
	now      func() time.Time
}

// NewService creates a Service.
func NewService(store DocumentStore, roadmaps Roadmaps) *Service {
	return &Service{store: store, roadmaps: roadmaps, now: time.Now}
}

// OnboardingInput carries the choices made during onboarding. Keywords may
// hold values of any JSON type; only non-empty strings survive.
type OnboardingInput struct {
	Name            string
	Categories      []string
	Keywords        []any
	LearningContext string
}

// CompleteOnboarding stores preferences, marks the user onboarded and
// generates the roadmap. A roadmap failure fails the whole call.
func (s *Service) CompleteOnboarding(ctx context.Context, userID string, in OnboardingInput) (Preferences, []roadmap.Step, error) {
	cats := cleanCategories(in.Categories)
	if len(cats) == 0 {
		return Preferences{}, nil, roadmap.ErrNoCategories
	}

	now := s.now().UTC()
	p := Preferences{
		UserID:             userID,
		SelectedCategories: cats,
		Keywords:           oracle.SanitizeKeywords(in.Keywords),
		LearningContext:    strings.TrimSpace(in.LearningContext),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, storage.CollectionPreferences, userID, p); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			return Preferences{}, nil, fmt.Errorf("saving preferences: %w", err)
		}
		patch := map[string]any{
			"selectedCategories": p.SelectedCategories,
			"keywords":           p.Keywords,
			"updatedAt":          now,
		}
		if p.LearningContext != "" {
			patch["learningContext"] = p.LearningContext
		}
		if err := s.store.Update(ctx, storage.CollectionPreferences, userID, patch); err != nil {
			return Preferences{}, nil, fmt.Errorf("updating preferences: %w", err)
		}
	}

	if err := s.upsertUser(ctx, User{UserID: userID, Name: in.Name, Onboarded: true, UpdatedAt: now}); err != nil {
		return Preferences{}, nil, err
	}

	steps, err := s.roadmaps.GenerateRoadmap(ctx, userID, cats)
	if err != nil {
		return Preferences{}, nil, fmt.Errorf("generating roadmap: %w", err)
	}
	slog.Info("onboarding completed", "user", userID, "categories", len(cats), "keywords", len(p.Keywords))
	return p, steps, nil
}

// Get returns the user's preferences or ErrNoPreferences.
func (s *Service) Get(ctx context.Context, userID string) (Preferences, error) {
	rec, err := s.store.Get(ctx, storage.CollectionPreferences, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Preferences{}, ErrNoPreferences
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("reading preferences: %w", err)
	}
	var p Preferences
	if err := rec.Decode(&p); err != nil {
		return Preferences{}, fmt.Errorf("decoding preferences: %w", err)
	}
	return p, nil
}

// GetUser returns the user document or storage.ErrNotFound.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	rec, err := s.store.Get(ctx, storage.CollectionUsers, userID)
	if err != nil {
		return User{}, err
	}
	var u User
	if err := rec.Decode(&u); err != nil {
		return User{}, fmt.Errorf("decoding user: %w", err)
	}
	return u, nil
}

// UpdateCategories stores a new category list. A change in membership
// reinitializes the roadmap; a pure reordering does not. It reports whether
// reinitialization ran.
func (s *Service) UpdateCategories(ctx context.Context, userID string, categories []string) (bool, error) {
	cats := cleanCategories(categories)
	if len(cats) == 0 {
		return false, roadmap.ErrNoCategories
	}
	old, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	patch := map[string]any{"selectedCategories": cats, "updatedAt": s.now().UTC()}
	if err := s.store.Update(ctx, storage.CollectionPreferences, userID, patch); err != nil {
		return false, fmt.Errorf("updating categories: %w", err)
	}

	if !HaveCategoriesChanged(old.SelectedCategories, cats) {
		return false, nil
	}
	slog.Info("categories changed, reinitializing roadmap", "user", userID)
	if _, err := s.roadmaps.ReinitializeUserLearningData(ctx, userID, cats); err != nil {
		return false, fmt.Errorf("reinitializing roadmap: %w", err)
	}
	return true, nil
}

// UpdateKeywords replaces keywords and, when non-empty, the learning context.
// It never touches the roadmap.
func (s *Service) UpdateKeywords(ctx context.Context, userID string, keywords []any, learningContext string) (Preferences, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return Preferences{}, err
	}
	patch := map[string]any{"keywords": oracle.SanitizeKeywords(keywords), "updatedAt": s.now().UTC()}
	if lc := strings.TrimSpace(learningContext); lc != "" {
		patch["learningContext"] = lc
	}
	if err := s.store.Update(ctx, storage.CollectionPreferences, userID, patch); err != nil {
		return Preferences{}, fmt.Errorf("updating keywords: %w", err)
	}
	return s.Get(ctx, userID)
}

// HaveCategoriesChanged compares the two lists as sets. With no previous
// categories there is nothing to invalidate, so it reports false.
func HaveCategoriesChanged(old, updated []string) bool {
	if len(old) == 0 {
		return false
	}
	a, b := sortedSet(old), sortedSet(updated)
	return !slices.Equal(a, b)
}

func (s *Service) upsertUser(ctx context.Context, u User) error {
	patch := map[string]any{"onboarded": u.Onboarded, "updatedAt": u.UpdatedAt}
	if u.Name != "" {
		patch["name"] = u.Name
	}
	err := s.store.Update(ctx, storage.CollectionUsers, u.UserID, patch)
	if errors.Is(err, storage.ErrNotFound) {
		err = s.store.Create(ctx, storage.CollectionUsers, u.UserID, u)
	}
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

func cleanCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func sortedSet(in []string) []string {
	out := cleanCategories(in)
	slices.Sort(out)
	return out
}
