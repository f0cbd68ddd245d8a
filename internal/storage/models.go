package storage

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by Create when the id is already taken in the collection.
var ErrDuplicate = errors.New("duplicate document id")

// Collection names used by the application.
const (
	CollectionUsers       = "users"
	CollectionPreferences = "preferences"
	CollectionCategories  = "categories"
	CollectionSteps       = "roadmap_steps"
	CollectionVideos      = "saved_videos"
)

// Record is a stored document. Data holds the JSON body as written.
type Record struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document body into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter compares one JSON field of the document body against a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Query selects documents within a collection. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
