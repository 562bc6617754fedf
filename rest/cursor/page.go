package cursor

// Link points to a neighbouring page, Href is the encoded cursor to pass
// back as query parameter c
type Link struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

// Page is one window of a list with the total length of the list
type Page[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Links []Link `json:"links,omitempty"`
}

// PageOf cuts the window designated by c out of items
func PageOf[T any](items []T, c Cursor) Page[T] {
	from, to, hasMore := c.Slice(len(items))
	page := Page[T]{Data: items[from:to], Total: len(items)}
	if page.Data == nil {
		page.Data = []T{}
	}
	if previous, exists := c.Previous(); exists {
		page.Links = append(page.Links, Link{"previous", previous.Encode()})
	}
	if next, exists := c.Next(); exists && hasMore {
		page.Links = append(page.Links, Link{"next", next.Encode()})
	}
	return page
}

// Unpaged wraps a complete list
func Unpaged[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Data: items, Total: len(items)}
}
