package store

import (
	"sort"

	"chat-engine/internal/models"
)

// SortOldestFirst orders messages by timestamp then id.
func SortOldestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return OlderThan(msgs[i], msgs[j])
	})
}

// SortNewestFirst orders messages by timestamp then id, descending.
func SortNewestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return OlderThan(msgs[j], msgs[i])
	})
}

// OlderThan is the total conversation order.
func OlderThan(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
