package store

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/plugbook/internal/models"
)

// Filter is a validated equality condition on a domain column.
type Filter struct {
	Field string
	Value any
}

// Query selects one page of rows of a single organization. Rows are always
// ordered by (created_at, id), which never changes after insert, so pages
// already returned are stable under concurrent inserts.
type Query struct {
	OrgID          uuid.UUID
	Filters        []Filter
	IncludeDeleted bool
	Descending     bool
	After          *Cursor
	Limit          int
}

// Cursor is the keyset position of the last row of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorOf returns the keyset position of e.
func CursorOf(e *models.Entity) Cursor {
	return Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Compare orders two positions by created_at, then id.
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.CreatedAt.Before(o.CreatedAt):
		return -1
	case c.CreatedAt.After(o.CreatedAt):
		return 1
	}
	for i := range c.ID {
		if c.ID[i] != o.ID[i] {
			if c.ID[i] < o.ID[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

const cursorLen = 8 + 16

// Encode returns an opaque page token.
func (c Cursor) Encode() string {
	buf := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(buf[:8], uint64(c.CreatedAt.UnixMicro())) // #nosec G115 - timestamps are positive
	copy(buf[8:], c.ID[:])
	return base58.Encode(buf)
}

// DecodeCursor parses a page token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	buf, err := base58.Decode(token)
	if err != nil || len(buf) != cursorLen {
		return nil, FieldInvalid("page_token", "malformed page token")
	}
	var id uuid.UUID
	copy(id[:], buf[8:])
	micros := int64(binary.BigEndian.Uint64(buf[:8])) // #nosec G115 - round trip of Encode
	return &Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: id}, nil
}
