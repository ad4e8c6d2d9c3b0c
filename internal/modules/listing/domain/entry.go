package domain

import "time"

// Entry is one item discovered in a remote directory listing, usually a tag.
// Date is zero when the listing did not carry a parseable timestamp and
// Author is empty when the listing does not name one.
type Entry struct {
	Name   string    `json:"name"`
	Link   string    `json:"link"`
	Date   time.Time `json:"date"`
	Author string    `json:"author,omitempty"`
}
