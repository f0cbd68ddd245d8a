package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/learntube/learntube/internal/cache"
	"github.com/learntube/learntube/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	defaultQPS     = 5

	// keyPrefix namespaces every response cached by this package.
	keyPrefix    = "youtube:"
	quotaFlagKey = "youtube_quota_exceeded"
	quotaWindow  = 24 * time.Hour
)

// Options tunes the client. Zero values select defaults.
type Options struct {
	BaseURL    string // e.g. "https://youtube.googleapis.com/"
	Timeout    time.Duration
	QPS        float64
	HTTPClient *http.Client
}

// Client resolves queries into playlists and videos. Failures never reach
// the caller: every exported operation degrades to cached data or an empty result.
type Client struct {
	svc     *yt.Service
	pool    *CredentialPool
	cache   *cache.Cache
	quota   *cache.Flag
	limiter *rate.Limiter
}

// New creates a Client. The pool is owned by the caller so it can be shared
// and reset independently.
func New(ctx context.Context, pool *CredentialPool, c *cache.Cache, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.QPS <= 0 {
		opts.QPS = defaultQPS
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	clientOpts := []option.ClientOption{
		option.WithHTTPClient(httpClient),
		option.WithoutAuthentication(),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}

	if pool.Len() == 0 {
		slog.Error("no YouTube API keys configured; content resolution will return empty results")
	}

	return &Client{
		svc:     svc,
		pool:    pool,
		cache:   c,
		quota:   c.Flag(quotaFlagKey, quotaWindow),
		limiter: rate.NewLimiter(rate.Limit(opts.QPS), int(opts.QPS)+1),
	}, nil
}

// withCache serves key from the cache when fresh, otherwise runs produce and
// caches a successful result. Errors are never cached.
func withCache[T any](ctx context.Context, c *cache.Cache, key string, produce func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Lookup(ctx, key, &v) {
		return v, nil
	}
	v, err := produce(ctx)
	if err != nil {
		var cached T
		if c.Lookup(ctx, key, &cached) {
			return cached, nil
		}
		return cached, err
	}
	c.Put(ctx, key, v)
	return v, nil
}

// withCredential runs call with the pool's current key, rotating on quota and
// authorization failures up to once per configured key. When every key ends
// up exhausted the 24h quota flag is set; while it is set no call is made.
func withCredential[T any](ctx context.Context, cl *Client, op string, call func(ctx context.Context, apiKey string) (T, error)) (T, error) {
	var zero T

	if cl.quota.IsSet(ctx) {
		return zero, &Error{Kind: KindQuota, Op: op, Err: fmt.Errorf("quota flag set")}
	}

	attempts := cl.pool.Len()
	if attempts == 0 {
		slog.Error("youtube call attempted with no API keys configured", "op", op)
		return zero, &Error{Kind: KindNoCredentials, Op: op}
	}

	var lastErr *Error
	for range attempts {
		apiKey, idx, ok := cl.pool.Current()
		if !ok {
			break
		}
		if err := cl.limiter.Wait(ctx); err != nil {
			return zero, &Error{Kind: KindTransient, Op: op, Err: err}
		}

		v, err := call(ctx, apiKey)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(op, "ok").Inc()
			return v, nil
		}

		lastErr = classify(op, err)
		metrics.ProviderRequests.WithLabelValues(op, lastErr.Kind.String()).Inc()
		if !lastErr.Kind.rotates() {
			return zero, lastErr
		}

		metrics.CredentialRotations.Inc()
		slog.Warn("youtube API key exhausted", "op", op, "key_index", idx, "kind", lastErr.Kind.String())
		if !cl.pool.MarkExhausted(idx) {
			cl.quota.Set(ctx)
			metrics.QuotaBreakerTrips.Inc()
			slog.Warn("all youtube API keys exhausted, pausing provider calls", "window", quotaWindow.String())
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Candidate is an unverified search hit.
type Candidate struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"` // "playlist" or "video"
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	PublishedAt  string `json:"publishedAt,omitempty"`
}

// Details describes a playlist confirmed to exist.
type Details struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ItemCount    int64  `json:"itemCount"`
}

// VideoItem is one entry of a playlist.
type VideoItem struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ChannelTitle string `json:"channelTitle"`
	Position     int64  `json:"position"`
}

// SearchPlaylists returns playlists matching query, most relevant first.
func (c *Client) SearchPlaylists(ctx context.Context, query string, maxResults int) []Candidate {
	key := fmt.Sprintf("%splaylists_%s_%d", keyPrefix, query, maxResults)
	out, err := withCache(ctx, c.cache, key, func(ctx context.Context) ([]Candidate, error) {
		return withCredential(ctx, c, "search_playlists", func(ctx context.Context, apiKey string) ([]Candidate, error) {
			resp, err := c.svc.Search.List([]string{"snippet"}).
				Q(query).
				Type("playlist").
				MaxResults(int64(maxResults)).
				RelevanceLanguage("en").
				Order("relevance").
				Context(ctx).
				Do(googleapi.QueryParameter("key", apiKey))
			if err != nil {
				return nil, err
			}
			return candidatesFrom(resp.Items), nil
		})
	})
	if err != nil {
		logDegraded("search_playlists", err)
		return []Candidate{}
	}
	return out
}

// SearchVideos returns up to ten embeddable videos for query.
func (c *Client) SearchVideos(ctx context.Context, query string) []Candidate {
	key := keyPrefix + "search_" + query
	out, err := withCache(ctx, c.cache, key, func(ctx context.Context) ([]Candidate, error) {
		return withCredential(ctx, c, "search_videos", func(ctx context.Context, apiKey string) ([]Candidate, error) {
			resp, err := c.svc.Search.List([]string{"snippet"}).
				Q(query).
				Type("video").
				MaxResults(10).
				VideoEmbeddable("true").
				RelevanceLanguage("en").
				Order("relevance").
				Context(ctx).
				Do(googleapi.QueryParameter("key", apiKey))
			if err != nil {
				return nil, err
			}
			return candidatesFrom(resp.Items), nil
		})
	})
	if err != nil {
		logDegraded("search_videos", err)
		return []Candidate{}
	}
	return out
}

// GetPlaylistDetails returns nil when the playlist does not exist or cannot
// be looked up. Absent playlists are not cached.
func (c *Client) GetPlaylistDetails(ctx context.Context, playlistID string) *Details {
	key := keyPrefix + "playlist_details_" + playlistID
	d, err := withCache(ctx, c.cache, key, func(ctx context.Context) (*Details, error) {
		return withCredential(ctx, c, "playlist_details", func(ctx context.Context, apiKey string) (*Details, error) {
			resp, err := c.svc.Playlists.List([]string{"snippet", "contentDetails"}).
				Id(playlistID).
				Context(ctx).
				Do(googleapi.QueryParameter("key", apiKey))
			if err != nil {
				return nil, err
			}
			if len(resp.Items) == 0 {
				return nil, &Error{Kind: KindNotFound, Op: "playlist_details", Err: fmt.Errorf("playlist %s", playlistID)}
			}
			return detailsFrom(resp.Items[0]), nil
		})
	})
	if err != nil {
		if KindOf(err) != KindNotFound {
			logDegraded("playlist_details", err)
		}
		return nil
	}
	return d
}

// GetPlaylistVideos lists items of a playlist. maxResults <= 0 selects 50.
func (c *Client) GetPlaylistVideos(ctx context.Context, playlistID string, maxResults int) []VideoItem {
	if maxResults <= 0 {
		maxResults = 50
	}
	key := fmt.Sprintf("%splaylist_videos_%s_%d", keyPrefix, playlistID, maxResults)
	out, err := withCache(ctx, c.cache, key, func(ctx context.Context) ([]VideoItem, error) {
		return withCredential(ctx, c, "playlist_videos", func(ctx context.Context, apiKey string) ([]VideoItem, error) {
			resp, err := c.svc.PlaylistItems.List([]string{"snippet"}).
				PlaylistId(playlistID).
				MaxResults(int64(maxResults)).
				Context(ctx).
				Do(googleapi.QueryParameter("key", apiKey))
			if err != nil {
				return nil, err
			}
			items := make([]VideoItem, 0, len(resp.Items))
			for _, it := range resp.Items {
				if it.Snippet == nil {
					continue
				}
				v := VideoItem{
					Title:        it.Snippet.Title,
					Description:  it.Snippet.Description,
					ThumbnailURL: pickThumbnail(it.Snippet.Thumbnails),
					ChannelTitle: it.Snippet.ChannelTitle,
					Position:     it.Snippet.Position,
				}
				if it.Snippet.ResourceId != nil {
					v.VideoID = it.Snippet.ResourceId.VideoId
				}
				items = append(items, v)
			}
			return items, nil
		})
	})
	if err != nil {
		logDegraded("playlist_videos", err)
		return []VideoItem{}
	}
	return out
}

// ClearCache drops every cached provider response. The quota flag is kept.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	return c.cache.Clear(ctx, keyPrefix)
}

// ResetQuota clears the quota flag and the pool's exhaustion state.
func (c *Client) ResetQuota(ctx context.Context) {
	c.quota.Clear(ctx)
	c.pool.Reset()
}

// ResetKeyRotation clears only the pool's exhaustion state.
func (c *Client) ResetKeyRotation() {
	c.pool.Reset()
}

// Stats reports credential rotation and quota flag state.
type Stats struct {
	PoolStats
	QuotaExceeded bool       `json:"quota_exceeded"`
	QuotaSetAt    *time.Time `json:"quota_set_at,omitempty"`
}

func (c *Client) KeyStats(ctx context.Context) Stats {
	s := Stats{PoolStats: c.pool.Stats()}
	if at, ok := c.quota.SetAt(ctx); ok {
		s.QuotaExceeded = true
		s.QuotaSetAt = &at
	}
	return s
}

func candidatesFrom(items []*yt.SearchResult) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		if it.Id == nil || it.Snippet == nil {
			continue
		}
		cand := Candidate{
			Title:        it.Snippet.Title,
			Description:  it.Snippet.Description,
			ChannelTitle: it.Snippet.ChannelTitle,
			ThumbnailURL: pickThumbnail(it.Snippet.Thumbnails),
			PublishedAt:  it.Snippet.PublishedAt,
		}
		switch {
		case it.Id.PlaylistId != "":
			cand.ID, cand.Kind = it.Id.PlaylistId, "playlist"
		case it.Id.VideoId != "":
			cand.ID, cand.Kind = it.Id.VideoId, "video"
		default:
			continue
		}
		out = append(out, cand)
	}
	return out
}

func detailsFrom(p *yt.Playlist) *Details {
	d := &Details{ID: p.Id}
	if p.Snippet != nil {
		d.Title = p.Snippet.Title
		d.Description = p.Snippet.Description
		d.ChannelTitle = p.Snippet.ChannelTitle
		d.ThumbnailURL = pickThumbnail(p.Snippet.Thumbnails)
	}
	if p.ContentDetails != nil {
		d.ItemCount = p.ContentDetails.ItemCount
	}
	return d
}

func pickThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.High != nil && t.High.Url != "" {
		return t.High.Url
	}
	if t.Default != nil {
		return t.Default.Url
	}
	return ""
}

func logDegraded(op string, err error) {
	slog.Warn("youtube request degraded to empty result", "op", op, "error", err)
}
