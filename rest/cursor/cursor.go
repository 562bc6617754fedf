package cursor

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
)

// Cursor is the position of a page within a list, it is handed to clients
// base64 encoded
type Cursor struct {
	Start    uint
	PageSize uint
}

const (
	DefaultPageSize uint = 20
	MaxPageSize     uint = 500
)

// DecodeFromRequest reads the cursor from the query parameter c, the page
// size may be overridden with p
func DecodeFromRequest(r *http.Request) Cursor {
	cursor := DecodeFromString(r.URL.Query().Get("c"), DefaultPageSize)
	if pageSizeStr := r.URL.Query().Get("p"); pageSizeStr != "" {
		if pageSize, err := strconv.ParseUint(pageSizeStr, 10, 0); err == nil && pageSize > 0 {
			cursor.PageSize = uint(pageSize)
		}
	}
	if cursor.PageSize > MaxPageSize {
		cursor.PageSize = MaxPageSize
	}
	return cursor
}

// DecodeFromString decodes an encoded cursor, a malformed one yields the
// first page
func DecodeFromString(encoded string, defaultPageSize uint) Cursor {
	cursor := Cursor{PageSize: defaultPageSize}
	if encoded == "" {
		return cursor
	}
	asJSON, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return cursor
	}
	var decoded Cursor
	if err := json.Unmarshal(asJSON, &decoded); err != nil {
		return cursor
	}
	if decoded.PageSize == 0 {
		decoded.PageSize = defaultPageSize
	}
	return decoded
}

func (c Cursor) Encode() string {
	asJSON, err := json.Marshal(&c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(asJSON)
}

func (c Cursor) Previous() (Cursor, bool) {
	if c.Start == 0 {
		return Cursor{}, false
	}
	start := uint(0)
	if c.Start > c.PageSize {
		start = c.Start - c.PageSize
	}
	return Cursor{Start: start, PageSize: c.PageSize}, true
}

func (c Cursor) Next() (Cursor, bool) {
	return Cursor{Start: c.Start + c.PageSize, PageSize: c.PageSize}, true
}

// Slice returns the bounds of the page within a list of length n and
// whether there are more elements after it
func (c Cursor) Slice(n int) (from, to int, hasMore bool) {
	from = int(c.Start)
	if from > n {
		from = n
	}
	to = from + int(c.PageSize)
	if to >= n {
		return from, n, false
	}
	return from, to, true
}
