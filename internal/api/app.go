package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learntube/learntube/internal/metrics"
	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/preferences"
	"github.com/learntube/learntube/internal/roadmap"
	"github.com/learntube/learntube/internal/storage"
	"github.com/learntube/learntube/internal/taxonomy"
	"github.com/learntube/learntube/internal/youtube"
)

const maxRequestBodySize = 1 << 20 // 1MB

var validate = validator.New()

// Roadmaps is the roadmap engine surface. Implemented by roadmap.Engine.
type Roadmaps interface {
	GenerateRoadmap(ctx context.Context, userID string, categories []string) ([]roadmap.Step, error)
	GetRoadmapSteps(ctx context.Context, userID string) []roadmap.Step
	GetCurrentStep(ctx context.Context, userID string) *roadmap.Step
	GetStep(ctx context.Context, stepID string) (roadmap.Step, error)
	UpdateStepStatus(ctx context.Context, stepID string, status roadmap.Status) (roadmap.Step, error)
	CompleteStepAndMoveNext(ctx context.Context, userID, stepID string) (*roadmap.Step, error)
	SelectStep(ctx context.Context, userID, stepID string) (roadmap.Step, error)
	DeleteRoadmap(ctx context.Context, userID string) error
	FetchAndSavePlaylistsForStep(ctx context.Context, step roadmap.Step) ([]roadmap.SavedVideo, error)
	RefreshPlaylistsForStep(ctx context.Context, stepID string) ([]roadmap.SavedVideo, error)
}

// Preferences is the onboarding and preferences surface. Implemented by
// preferences.Service.
type Preferences interface {
	CompleteOnboarding(ctx context.Context, userID string, in preferences.OnboardingInput) (preferences.Preferences, []roadmap.Step, error)
	Get(ctx context.Context, userID string) (preferences.Preferences, error)
	UpdateCategories(ctx context.Context, userID string, categories []string) (bool, error)
	UpdateKeywords(ctx context.Context, userID string, keywords []any, learningContext string) (preferences.Preferences, error)
}

// Recommender is implemented by oracle.Recommender.
type Recommender interface {
	GetCourseRecommendations(ctx context.Context, categories []string) []youtube.Course
	GetRecentVideos(ctx context.Context, categories []string) []youtube.Course
}

// KeywordGenerator is implemented by oracle.GeminiClient.
type KeywordGenerator interface {
	GenerateKeywords(ctx context.Context, categories []string, learningContext string) []string
}

// Assistant is implemented by oracle.Assistant.
type Assistant interface {
	Chat(ctx context.Context, message string, user oracle.UserContext, history []oracle.Message) string
}

// ContentAdmin exposes provider maintenance. Implemented by youtube.Client.
type ContentAdmin interface {
	ClearCache(ctx context.Context) (int, error)
	ResetQuota(ctx context.Context)
	KeyStats(ctx context.Context) youtube.Stats
}

type AppDeps struct {
	Roadmaps    Roadmaps
	Preferences Preferences
	Recommender Recommender
	Keywords    KeywordGenerator
	Assistant   Assistant
	Content     ContentAdmin
	Categories  taxonomy.DocumentStore
	Token       string // empty disables bearer auth
	RateLimit   int    // requests per minute per client IP; 0 disables
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.RateLimit > 0 {
			r.Use(httprate.LimitByIP(deps.RateLimit, time.Minute))
		}
		r.Use(BearerAuth(deps.Token))

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/onboarding", handleOnboarding(deps))
			r.Get("/preferences", handleGetPreferences(deps))
			r.Put("/preferences", handlePutPreferences(deps))

			r.Get("/roadmap", handleGetRoadmap(deps))
			r.Post("/roadmap", handleGenerateRoadmap(deps))
			r.Delete("/roadmap", handleDeleteRoadmap(deps))
			r.Get("/roadmap/current", handleCurrentStep(deps))
			r.Post("/roadmap/steps/{stepID}/complete", handleCompleteStep(deps))
			r.Post("/roadmap/steps/{stepID}/select", handleSelectStep(deps))
		})

		r.Patch("/steps/{stepID}", handlePatchStep(deps))
		r.Get("/steps/{stepID}/videos", handleStepVideos(deps))

		r.Post("/recommendations", handleRecommendations(deps))
		r.Post("/recent", handleRecent(deps))
		r.Post("/keywords", handleKeywords(deps))
		r.Post("/chat", handleChat(deps))
		r.Get("/categories", handleCategories(deps))

		r.Route("/admin", func(r chi.Router) {
			r.Post("/cache/clear", handleClearCache(deps))
			r.Post("/quota/reset", handleResetQuota(deps))
			r.Get("/credentials", handleCredentials(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// instrument records request latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// decodeBody reads a JSON request body into v and validates its struct tags.
// On failure the error response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps package sentinels to status codes.
func writeDomainError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
	case errors.Is(err, preferences.ErrNoPreferences):
		httpError(w, http.StatusNotFound, "not_found", "no preferences for user")
	case errors.Is(err, roadmap.ErrStepLocked):
		httpError(w, http.StatusConflict, "conflict_error", "step has not been unlocked yet")
	case errors.Is(err, roadmap.ErrNoCategories), errors.Is(err, roadmap.ErrInvalidStatus):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
