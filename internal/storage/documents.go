package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// timeLayout is fixed-width so created_at/updated_at sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var validOps = map[Op]bool{OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true}

// Create inserts a new document. fields must marshal to a JSON object.
func (s *Store) Create(ctx context.Context, collection, id string, fields any) error {
	body, err := marshalObject(fields)
	if err != nil {
		return err
	}
	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(body), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrDuplicate)
		}
		return fmt.Errorf("inserting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get returns one document or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection, id, data, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return r, nil
}

// Update merges patch into the stored body (RFC 7396 merge semantics: a
// null value removes the field).
func (s *Store) Update(ctx context.Context, collection, id string, patch any) error {
	body, err := marshalObject(patch)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = json_patch(data, ?), updated_at = ?
		WHERE collection = ? AND id = ?`,
		string(body), s.timestamp(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

// UpdateIf applies patch only when cond holds on the stored body. It returns
// false without error when the document exists but cond did not match.
func (s *Store) UpdateIf(ctx context.Context, collection, id string, cond Filter, patch any) (bool, error) {
	body, err := marshalObject(patch)
	if err != nil {
		return false, err
	}
	clause, args, err := filterClause(cond)
	if err != nil {
		return false, err
	}

	query := `UPDATE documents SET data = json_patch(data, ?), updated_at = ?
		WHERE collection = ? AND id = ? AND ` + clause
	params := append([]any{string(body), s.timestamp(), collection, id}, args...)

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return false, fmt.Errorf("conditionally updating %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.Get(ctx, collection, id); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes one document or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return requireAffected(res)
}

// List returns documents in collection matching every filter in q.
func (s *Store) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT collection, id, data, created_at, updated_at FROM documents WHERE collection = ?`)
	args := []any{collection}

	for _, f := range q.Filters {
		clause, fargs, err := filterClause(f)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(clause)
		args = append(args, fargs...)
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		if !fieldPattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		fmt.Fprintf(&sb, " ORDER BY json_extract(data, '$.%s') %s, created_at ASC, id ASC", q.OrderBy, dir)
	} else {
		fmt.Fprintf(&sb, " ORDER BY created_at %s, id %s", dir, dir)
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", collection, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func filterClause(f Filter) (string, []any, error) {
	if !fieldPattern.MatchString(f.Field) {
		return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
	}
	if !validOps[f.Op] {
		return "", nil, fmt.Errorf("invalid filter operator %q", f.Op)
	}
	expr := fmt.Sprintf("json_extract(data, '$.%s')", f.Field)

	if f.Value == nil {
		switch f.Op {
		case OpEq:
			return expr + " IS NULL", nil, nil
		case OpNe:
			return expr + " IS NOT NULL", nil, nil
		default:
			return "", nil, fmt.Errorf("operator %q cannot compare against null", f.Op)
		}
	}
	return fmt.Sprintf("%s %s ?", expr, f.Op), []any{sqlValue(f.Value)}, nil
}

// sqlValue maps Go values onto what json_extract yields for the same JSON.
func sqlValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var data, createdAt, updatedAt string
	if err := row.Scan(&r.Collection, &r.ID, &data, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	r.Data = json.RawMessage(data)

	var err error
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Record{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Record{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}

func marshalObject(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return nil, fmt.Errorf("document body must be a JSON object")
	}
	return body, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}
