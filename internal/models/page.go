package models

// Page is one 1-based page of an ordered result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// TotalPages returns ceil(total/size), zero for an empty set.
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PageOffset validates a 1-based page number and returns its row offset.
func PageOffset(page, size int) (int, error) {
	if page < 1 || size < 1 {
		return 0, ErrInvalidPage
	}
	return (page - 1) * size, nil
}

// NewPage assembles a page, never returning a nil item slice.
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: page, TotalPages: TotalPages(total, size)}
}
