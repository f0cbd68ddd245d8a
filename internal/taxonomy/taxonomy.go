package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/learntube/learntube/internal/storage"
)

// Category is one node of the major > sub > niche tree.
type Category struct {
	OriginalID string  `json:"originalId"`
	Name       string  `json:"name"`
	ParentID   *string `json:"parentId"`
	Type       string  `json:"type"` // "major", "sub" or "niche"
	Image      string  `json:"image,omitempty"`
	Position   int     `json:"position"`
}

// DocumentStore defines the persistence operations the taxonomy needs.
// Implemented by storage.Store.
type DocumentStore interface {
	Create(ctx context.Context, collection, id string, fields any) error
	List(ctx context.Context, collection string, q storage.Query) ([]storage.Record, error)
}

func parent(id string) *string { return &id }

var seed = []Category{
	{OriginalID: "cse", Name: "Computer Science", Type: "major", Image: "https://img.icons8.com/color/480/source-code.png"},
	{OriginalID: "web-dev", Name: "Web Development", ParentID: parent("cse"), Type: "sub"},
	{OriginalID: "cyber-security", Name: "Cyber Security", ParentID: parent("cse"), Type: "sub"},
	{OriginalID: "android", Name: "Android Development", ParentID: parent("cse"), Type: "sub"},
	{OriginalID: "embedded", Name: "Embedded Systems", ParentID: parent("cse"), Type: "sub"},
	{OriginalID: "react", Name: "React Native", ParentID: parent("web-dev"), Type: "niche"},
	{OriginalID: "nextjs", Name: "Next.js", ParentID: parent("web-dev"), Type: "niche"},
	{OriginalID: "bug-bounty", Name: "Bug Bounty", ParentID: parent("cyber-security"), Type: "niche"},
	{OriginalID: "malware", Name: "Malware Analysis", ParentID: parent("cyber-security"), Type: "niche"},
	{OriginalID: "kotlin", Name: "Kotlin", ParentID: parent("android"), Type: "niche"},
	{OriginalID: "arduino", Name: "Arduino", ParentID: parent("embedded"), Type: "niche"},
}

// Seed writes the built-in categories, skipping any whose originalId is
// already stored. It returns how many were created.
func Seed(ctx context.Context, store DocumentStore) (int, error) {
	created := 0
	for i, c := range seed {
		c.Position = i
		err := store.Create(ctx, storage.CollectionCategories, c.OriginalID, c)
		if errors.Is(err, storage.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seeding category %s: %w", c.OriginalID, err)
		}
		created++
	}
	if created > 0 {
		slog.Info("categories seeded", "created", created)
	}
	return created, nil
}

// List returns stored categories in seed order. Empty kind or parentID
// means no filter on that field.
func List(ctx context.Context, store DocumentStore, kind, parentID string) ([]Category, error) {
	q := storage.Query{OrderBy: "position"}
	if kind != "" {
		q.Filters = append(q.Filters, storage.Eq("type", kind))
	}
	if parentID != "" {
		q.Filters = append(q.Filters, storage.Eq("parentId", parentID))
	}
	recs, err := store.List(ctx, storage.CollectionCategories, q)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	out := make([]Category, 0, len(recs))
	for _, r := range recs {
		var c Category
		if err := r.Decode(&c); err != nil {
			return nil, fmt.Errorf("decoding category %s: %w", r.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}
