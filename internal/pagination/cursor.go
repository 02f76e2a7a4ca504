// Package pagination provides opaque cursors for walking evaluation
// history. A cursor encodes the (createdAt, id) pair of the last record on
// a page; the id breaks ties when several evaluations share a timestamp.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for cursors the service did not mint.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in a listing, exclusive: the page resumes after it.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns the opaque form of a (createdAt, id) position.
func Encode(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor. Returns nil for empty input and
// ErrInvalidCursor for anything that does not round-trip from Encode.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosStr, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        id,
	}, nil
}

// ComputePage trims items to the requested limit and, when records remain,
// mints the cursor for the next page from the last kept item. extractKey
// returns the (createdAt, id) listing key of an item.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := extractKey(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
