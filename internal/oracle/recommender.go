package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/learntube/learntube/internal/metrics"
	"github.com/learntube/learntube/internal/youtube"
)

const (
	courseTopics     = 6
	recentTopics     = 8
	fallbackCategory = 3
	fallbackPerCat   = 2
	fallbackLevel    = "Beginner"
	topicParallel    = 3
)

// ContentSource resolves a free-text topic into verified courses.
type ContentSource interface {
	SearchCourses(ctx context.Context, topic string, maxResults int) []youtube.Course
}

// Completer is the subset of ChatClient the recommender needs.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, temperature float32, maxTokens int) (string, error)
}

// Topic is one suggestion from the LLM. It carries intent only; the URL and
// metadata always come from the content source.
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       string `json:"level"`
	SearchQuery string `json:"searchQuery"`
}

// Recommender turns categories into verified course suggestions.
type Recommender struct {
	llm     Completer
	content ContentSource
}

// NewRecommender creates a Recommender.
func NewRecommender(llm Completer, content ContentSource) *Recommender {
	return &Recommender{llm: llm, content: content}
}

type promptFrame struct {
	operation   string
	system      string
	user        string
	n           int
	temperature float32
	maxTokens   int
}

func courseFrame(categories []string) promptFrame {
	return promptFrame{
		operation: "courses",
		system:    "You are a learning path expert who suggests relevant course topics and search terms. Never make up URLs or playlist IDs.",
		user: fmt.Sprintf(`You are a learning path expert. For someone interested in %s, suggest %d specific course topics or search terms that would help them find YouTube playlists.

For each topic, provide:
- title: Specific course topic (e.g., "Python for Data Science", "React Hooks Tutorial")
- description: Brief 1-sentence description of what they'll learn
- level: Beginner, Intermediate, or Advanced
- searchQuery: The exact search term to use on YouTube (e.g., "python data science complete course")

Return ONLY a JSON array, no markdown. Example:
[{"title": "...", "description": "...", "level": "...", "searchQuery": "..."}]`, strings.Join(categories, ", "), courseTopics),
		n:           courseTopics,
		temperature: 0.3,
		maxTokens:   1500,
	}
}

func recentFrame(categories []string) promptFrame {
	return promptFrame{
		operation: "recent",
		system:    "You are a trending content expert who suggests current, relevant video topics and search terms. Focus on recent content. Never make up URLs.",
		user: fmt.Sprintf(`You are a trending content expert. Based on these interests: %s, suggest %d recent or trending YouTube video topics that would be valuable for learning.

For each topic, provide:
- title: Specific video topic (e.g., "New React Features", "Python Release Updates")
- description: Brief 1-sentence description
- level: Beginner, Intermediate, or Advanced
- searchQuery: Exact YouTube search term including "latest" or the current year for recency

Focus on recent practical tutorials and updates, mixing beginner and intermediate content.

Return ONLY a JSON array, no markdown. Example:
[{"title": "...", "description": "...", "level": "...", "searchQuery": "..."}]`, strings.Join(categories, ", "), recentTopics),
		n:           recentTopics,
		temperature: 0.5,
		maxTokens:   2000,
	}
}

// GetCourseRecommendations suggests up to six verified courses.
func (r *Recommender) GetCourseRecommendations(ctx context.Context, categories []string) []youtube.Course {
	return r.recommend(ctx, categories, courseFrame(categories))
}

// GetRecentVideos suggests up to eight verified, recency-biased courses.
func (r *Recommender) GetRecentVideos(ctx context.Context, categories []string) []youtube.Course {
	return r.recommend(ctx, categories, recentFrame(categories))
}

func (r *Recommender) recommend(ctx context.Context, categories []string, f promptFrame) []youtube.Course {
	text, err := r.llm.Complete(ctx, []Message{
		{Role: "system", Content: f.system},
		{Role: "user", Content: f.user},
	}, f.temperature, f.maxTokens)
	if err != nil {
		metrics.OracleRequests.WithLabelValues(f.operation, "error").Inc()
		slog.Warn("recommendation request failed, using provider fallback", "operation", f.operation, "error", err)
		return r.fallback(ctx, categories, f.operation)
	}

	topics := parseTopics(text)
	if len(topics) == 0 {
		metrics.OracleRequests.WithLabelValues(f.operation, "malformed").Inc()
		slog.Warn("recommendation reply held no topics, using provider fallback", "operation", f.operation)
		return r.fallback(ctx, categories, f.operation)
	}
	metrics.OracleRequests.WithLabelValues(f.operation, "ok").Inc()
	if len(topics) > f.n {
		topics = topics[:f.n]
	}

	courses := r.resolveTopics(ctx, topics)
	if len(courses) == 0 {
		slog.Warn("no topic resolved to a verified course, using provider fallback", "operation", f.operation)
		return r.fallback(ctx, categories, f.operation)
	}
	return courses
}

// resolveTopics looks up the best verified match for each topic and overlays
// the topic's title, description and level. Output follows topic order.
func (r *Recommender) resolveTopics(ctx context.Context, topics []Topic) []youtube.Course {
	matches := make([]*youtube.Course, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(topicParallel)
	for i, t := range topics {
		g.Go(func() error {
			found := r.content.SearchCourses(gctx, t.SearchQuery, 1)
			if len(found) == 0 {
				return nil
			}
			c := found[0]
			c.Title = t.Title
			c.Description = t.Description
			c.Level = t.Level
			matches[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	out := make([]youtube.Course, 0, len(topics))
	for _, m := range matches {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, *m)
	}
	return out
}

// fallback asks the content source directly for the first few categories.
func (r *Recommender) fallback(ctx context.Context, categories []string, operation string) []youtube.Course {
	metrics.OracleFallbacks.WithLabelValues(operation).Inc()
	limit := fallbackCategory * fallbackPerCat

	out := make([]youtube.Course, 0, limit)
	seen := make(map[string]bool)
	for i, cat := range categories {
		if i == fallbackCategory {
			break
		}
		for _, c := range r.content.SearchCourses(ctx, cat, fallbackPerCat) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			c.Level = fallbackLevel
			out = append(out, c)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// parseTopics extracts topic objects from a reply, dropping entries that are
// not objects or have no usable search query.
func parseTopics(text string) []Topic {
	raw, ok := ExtractJSONArray(text)
	if !ok {
		return nil
	}
	topics := make([]Topic, 0, len(raw))
	for _, item := range raw {
		var t Topic
		if err := json.Unmarshal(item, &t); err != nil {
			continue
		}
		t.SearchQuery = strings.TrimSpace(t.SearchQuery)
		if t.SearchQuery == "" {
			t.SearchQuery = strings.TrimSpace(t.Title)
		}
		if t.SearchQuery == "" {
			continue
		}
		topics = append(topics, t)
	}
	return topics
}
