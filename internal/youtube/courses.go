package youtube

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	noDescription   = "No description available"
	detailsParallel = 4
)

// Course is a playlist or video verified to exist and be non-empty.
type Course struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	ThumbnailURL string `json:"thumbnailUrl"`
	VideoCount   int64  `json:"videoCount,omitempty"`
	URL          string `json:"url"`
	Type         string `json:"type"` // "playlist" or "video"
	Level        string `json:"level,omitempty"`
}

var errNoCourses = errors.New("no verified courses")

// PlaylistURL is the canonical watch URL of a playlist.
func PlaylistURL(id string) string {
	return "https://www.youtube.com/playlist?list=" + id
}

// VideoURL is the canonical watch URL of a video.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// SearchCourses finds playlists for topic and keeps only those whose details
// lookup confirms they exist with at least one item. Empty results are not cached.
func (c *Client) SearchCourses(ctx context.Context, topic string, maxResults int) []Course {
	key := fmt.Sprintf("%scourses_%s_%d", keyPrefix, topic, maxResults)
	out, err := withCache(ctx, c.cache, key, func(ctx context.Context) ([]Course, error) {
		courses := c.verifyPlaylists(ctx, c.SearchPlaylists(ctx, topic+" course tutorial complete", maxResults))
		if len(courses) == 0 {
			return nil, errNoCourses
		}
		return courses, nil
	})
	if err != nil {
		return []Course{}
	}
	return out
}

// verifyPlaylists fetches details for each candidate concurrently and maps
// the survivors into courses, preserving candidate order.
func (c *Client) verifyPlaylists(ctx context.Context, candidates []Candidate) []Course {
	details := make([]*Details, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailsParallel)
	for i, cand := range candidates {
		g.Go(func() error {
			details[i] = c.GetPlaylistDetails(gctx, cand.ID)
			return nil
		})
	}
	_ = g.Wait()

	courses := make([]Course, 0, len(candidates))
	for i, cand := range candidates {
		d := details[i]
		if d == nil || d.ItemCount <= 0 {
			continue
		}
		desc := d.Description
		if desc == "" {
			desc = cand.Description
		}
		if desc == "" {
			desc = noDescription
		}
		thumb := cand.ThumbnailURL
		if thumb == "" {
			thumb = d.ThumbnailURL
		}
		courses = append(courses, Course{
			ID:           cand.ID,
			Title:        firstNonEmpty(d.Title, cand.Title),
			Description:  desc,
			ChannelTitle: firstNonEmpty(d.ChannelTitle, cand.ChannelTitle),
			ThumbnailURL: thumb,
			VideoCount:   d.ItemCount,
			URL:          PlaylistURL(cand.ID),
			Type:         "playlist",
		})
	}
	return courses
}

// VideosByKeywords picks two keywords at random and searches for videos
// matching both. Fewer than two keywords uses what is there.
func (c *Client) VideosByKeywords(ctx context.Context, keywords []string) []Course {
	var picked []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			picked = append(picked, k)
		}
	}
	if len(picked) == 0 {
		return []Course{}
	}
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > 2 {
		picked = picked[:2]
	}

	query := strings.Join(picked, " ") + " tutorial course"
	cands := c.SearchVideos(ctx, query)
	out := make([]Course, 0, len(cands))
	for _, cand := range cands {
		if cand.Kind != "video" {
			continue
		}
		desc := cand.Description
		if desc == "" {
			desc = noDescription
		}
		out = append(out, Course{
			ID:           cand.ID,
			Title:        cand.Title,
			Description:  desc,
			ChannelTitle: cand.ChannelTitle,
			ThumbnailURL: cand.ThumbnailURL,
			URL:          VideoURL(cand.ID),
			Type:         "video",
		})
	}
	return out
}

// ExtractID pulls a playlist or video id out of a YouTube URL. kind is
// "playlist", "video" or "" when nothing matched.
func ExtractID(raw string) (id, kind string) {
	if i := strings.Index(raw, "list="); i >= 0 {
		return cutParam(raw[i+len("list="):]), "playlist"
	}

	u, err := url.Parse(raw)
	if err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v, "video"
		}
		if strings.HasSuffix(u.Host, "youtu.be") {
			if id := strings.Trim(u.Path, "/"); id != "" {
				return cutParam(id), "video"
			}
		}
	}

	for _, marker := range []string{"youtu.be/", "/embed/", "/v/"} {
		if i := strings.Index(raw, marker); i >= 0 {
			if id := cutParam(raw[i+len(marker):]); id != "" {
				return id, "video"
			}
		}
	}
	return "", ""
}

func cutParam(s string) string {
	if i := strings.IndexAny(s, "&?#/"); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
