// Package pagination implements keyset pages ordered by (created_at, id)
// descending. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is what a list endpoint accepts.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Query is a validated Params: the page size plus one look-ahead row, and the
// decoded cursor if any.
type Query struct {
	Limit  int
	After  *Cursor
	fetchN int
}

// Resolve clamps the limit and decodes the cursor.
func (p Params) Resolve() (Query, error) {
	limit := p.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	q := Query{Limit: limit, fetchN: limit + 1}
	if strings.TrimSpace(p.Cursor) == "" {
		return q, nil
	}
	after, err := Decode(p.Cursor)
	if err != nil {
		return Query{}, err
	}
	q.After = after
	return q, nil
}

// Scope applies the keyset filter, ordering and look-ahead limit.
func (q Query) Scope(db *gorm.DB) *gorm.DB {
	if q.After != nil {
		db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.After.CreatedAt, q.After.CreatedAt, q.After.ID)
	}
	n := q.fetchN
	if n <= 0 {
		n = q.Limit + 1
	}
	return db.Order("created_at DESC").Order("id DESC").Limit(n)
}

// Trim cuts the look-ahead row and returns the cursor for the next page, or
// "" on the last page.
func Trim[T any](q Query, rows []T, key func(T) Cursor) ([]T, string) {
	if len(rows) <= q.Limit {
		return rows, ""
	}
	rows = rows[:q.Limit]
	return rows, Encode(key(rows[len(rows)-1]))
}

func Encode(c Cursor) string {
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func Decode(value string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("invalid cursor: missing position")
	}
	return &c, nil
}
