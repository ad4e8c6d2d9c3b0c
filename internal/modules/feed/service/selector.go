package service

import (
	"slices"

	"github.com/reshetovitsme/tag-feed/internal/modules/listing/domain"
)

// SelectRecent returns the last n entries of a listing, most recent first.
// Listings are in publication order, so the tail holds the newest tags.
func SelectRecent(entries []domain.Entry, n int) []domain.Entry {
	if n <= 0 || len(entries) == 0 {
		return nil
	}

	start := max(len(entries)-n, 0)
	selected := slices.Clone(entries[start:])
	slices.Reverse(selected)
	return selected
}
