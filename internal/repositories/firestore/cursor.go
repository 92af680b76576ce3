package firestore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

// listCursor is the page-token payload shared by createdAt-ordered listings.
type listCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeListCursor(cursor listCursor) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeListCursor(encoded string) (listCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return listCursor{}, fmt.Errorf("decode page token: %w", err)
	}
	var cursor listCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return listCursor{}, fmt.Errorf("decode page token json: %w", err)
	}
	return cursor, nil
}

func normalisePageSize(size int) int {
	if size <= 0 {
		return defaultListPageSize
	}
	if size > maxListPageSize {
		return maxListPageSize
	}
	return size
}
