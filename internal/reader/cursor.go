package reader

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/store"
)

// ErrInvalidCursor is returned when a page cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid page cursor")

type cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func encodeCursor(note *model.Note) string {
	data, _ := json.Marshal(cursor{CreatedAt: note.CreatedAt.UTC(), ID: note.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (*store.NoteCursor, error) {
	if s == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c cursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}

	return &store.NoteCursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID}, nil
}
