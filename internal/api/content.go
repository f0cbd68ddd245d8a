package api

import (
	"net/http"

	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/taxonomy"
)

type categoriesRequest struct {
	Categories []string `json:"categories" validate:"required,min=1,dive,required"`
}

type keywordsRequest struct {
	Categories      []string `json:"categories" validate:"required,min=1,dive,required"`
	LearningContext string   `json:"learningContext"`
}

type chatRequest struct {
	Message string             `json:"message" validate:"required"`
	User    oracle.UserContext `json:"user"`
	History []oracle.Message   `json:"history" validate:"dive"`
}

func handleRecommendations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req categoriesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, deps.Recommender.GetCourseRecommendations(r.Context(), req.Categories))
	}
}

func handleRecent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req categoriesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, deps.Recommender.GetRecentVideos(r.Context(), req.Categories))
	}
}

func handleKeywords(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req keywordsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		kw := deps.Keywords.GenerateKeywords(r.Context(), req.Categories, req.LearningContext)
		writeJSON(w, http.StatusOK, map[string]any{"keywords": kw})
	}
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		reply := deps.Assistant.Chat(r.Context(), req.Message, req.User, req.History)
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
	}
}

func handleCategories(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cats, err := taxonomy.List(r.Context(), deps.Categories, q.Get("type"), q.Get("parent"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list categories: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, cats)
	}
}

func handleClearCache(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Content.ClearCache(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear cache: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
	}
}

func handleResetQuota(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Content.ResetQuota(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func handleCredentials(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Content.KeyStats(r.Context()))
	}
}
