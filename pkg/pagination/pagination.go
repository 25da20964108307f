package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

const (
	// DefaultLimit is the page size used when none is configured
	DefaultLimit = 50

	// MaxLimit is the largest page size a server may configure
	MaxLimit = 200

	cursorPrefix = "offset:"
)

// ErrInvalidCursor is wrapped by the InvalidParams error returned for cursors
// this package did not produce
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// ClampLimit maps a configured page size into [1, MaxLimit]. Zero or negative
// values select DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// EncodeCursor returns the cursor addressing offset
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor returns the offset addressed by cursor. The empty cursor
// addresses the first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, invalidCursor(cursor)
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || offset < 0 {
		return 0, invalidCursor(cursor)
	}
	return offset, nil
}

// Page returns the page of items starting at cursor and the cursor of the
// following page, which is empty on the last page. A cursor past the end
// yields an empty page.
func Page[T any](items []T, cursor string, limit int) ([]T, string, error) {
	offset, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = ClampLimit(limit)

	if offset >= len(items) {
		return []T{}, "", nil
	}
	end := offset + limit
	if end >= len(items) {
		return items[offset:], "", nil
	}
	return items[offset:end], EncodeCursor(end), nil
}

func invalidCursor(cursor string) error {
	return mcperrors.WrapError(ErrInvalidCursor, mcperrors.CodeInvalidParams, "invalid cursor").
		WithDetail("cursor " + strconv.Quote(cursor))
}
