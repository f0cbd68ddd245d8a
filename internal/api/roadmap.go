package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/learntube/learntube/internal/preferences"
	"github.com/learntube/learntube/internal/roadmap"
)

type onboardingRequest struct {
	Name            string   `json:"name"`
	Categories      []string `json:"categories" validate:"required,min=1,dive,required"`
	Keywords        []any    `json:"keywords"`
	LearningContext string   `json:"learningContext"`
}

type preferencesRequest struct {
	Categories      []string `json:"categories" validate:"omitempty,min=1,dive,required"`
	Keywords        *[]any   `json:"keywords"`
	LearningContext string   `json:"learningContext"`
}

type generateRequest struct {
	Categories []string `json:"categories" validate:"omitempty,dive,required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=not_started in_progress completed"`
}

func handleOnboarding(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req onboardingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		userID := chi.URLParam(r, "userID")
		prefs, steps, err := deps.Preferences.CompleteOnboarding(r.Context(), userID, preferences.OnboardingInput{
			Name:            req.Name,
			Categories:      req.Categories,
			Keywords:        req.Keywords,
			LearningContext: req.LearningContext,
		})
		if err != nil {
			writeDomainError(w, "onboarding", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"preferences": prefs, "steps": steps})
	}
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Preferences.Get(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeDomainError(w, "preferences", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePutPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req preferencesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Categories) == 0 && req.Keywords == nil && req.LearningContext == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of categories, keywords or learningContext is required")
			return
		}

		userID := chi.URLParam(r, "userID")
		reinitialized := false
		if len(req.Categories) > 0 {
			changed, err := deps.Preferences.UpdateCategories(r.Context(), userID, req.Categories)
			if err != nil {
				writeDomainError(w, "updating categories", err)
				return
			}
			reinitialized = changed
		}
		if req.Keywords != nil || req.LearningContext != "" {
			var kw []any
			if req.Keywords != nil {
				kw = *req.Keywords
			} else {
				current, err := deps.Preferences.Get(r.Context(), userID)
				if err != nil {
					writeDomainError(w, "preferences", err)
					return
				}
				for _, k := range current.Keywords {
					kw = append(kw, k)
				}
			}
			if _, err := deps.Preferences.UpdateKeywords(r.Context(), userID, kw, req.LearningContext); err != nil {
				writeDomainError(w, "updating keywords", err)
				return
			}
		}

		p, err := deps.Preferences.Get(r.Context(), userID)
		if err != nil {
			writeDomainError(w, "preferences", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"preferences": p, "reinitialized": reinitialized})
	}
}

func handleGetRoadmap(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Roadmaps.GetRoadmapSteps(r.Context(), chi.URLParam(r, "userID")))
	}
}

// handleGenerateRoadmap uses the request's categories, or the stored
// preferences when none are given.
func handleGenerateRoadmap(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		userID := chi.URLParam(r, "userID")
		cats := req.Categories
		if len(cats) == 0 {
			p, err := deps.Preferences.Get(r.Context(), userID)
			if err != nil {
				writeDomainError(w, "preferences", err)
				return
			}
			cats = p.SelectedCategories
		}
		steps, err := deps.Roadmaps.GenerateRoadmap(r.Context(), userID, cats)
		if err != nil {
			writeDomainError(w, "generating roadmap", err)
			return
		}
		writeJSON(w, http.StatusCreated, steps)
	}
}

func handleDeleteRoadmap(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Roadmaps.DeleteRoadmap(r.Context(), chi.URLParam(r, "userID")); err != nil {
			writeDomainError(w, "deleting roadmap", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleCurrentStep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"step": deps.Roadmaps.GetCurrentStep(r.Context(), chi.URLParam(r, "userID"))})
	}
}

func handleCompleteStep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next, err := deps.Roadmaps.CompleteStepAndMoveNext(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "stepID"))
		if err != nil {
			writeDomainError(w, "step", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"next": next})
	}
}

func handleSelectStep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Roadmaps.SelectStep(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "stepID"))
		if err != nil {
			writeDomainError(w, "step", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handlePatchStep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if !decodeBody(w, r, &req) {
			return
		}
		stepID := chi.URLParam(r, "stepID")
		if _, err := deps.Roadmaps.GetStep(r.Context(), stepID); err != nil {
			writeDomainError(w, "step", err)
			return
		}
		s, err := deps.Roadmaps.UpdateStepStatus(r.Context(), stepID, roadmap.Status(req.Status))
		if err != nil {
			writeDomainError(w, "step", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleStepVideos(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stepID := chi.URLParam(r, "stepID")
		step, err := deps.Roadmaps.GetStep(r.Context(), stepID)
		if err != nil {
			writeDomainError(w, "step", err)
			return
		}

		var videos []roadmap.SavedVideo
		if r.URL.Query().Get("refresh") == "true" {
			videos, err = deps.Roadmaps.RefreshPlaylistsForStep(r.Context(), stepID)
		} else {
			videos, err = deps.Roadmaps.FetchAndSavePlaylistsForStep(r.Context(), step)
		}
		if err != nil {
			writeDomainError(w, "resolving step content", err)
			return
		}
		writeJSON(w, http.StatusOK, videos)
	}
}
