package domain

import "time"

// Metadata is the static, feed-level part of every published document
type Metadata struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Link           string `json:"link"`
	SyndicationURL string `json:"syndication_url"`
	Author         string `json:"author"`
	AuthorEmail    string `json:"author_email"`
	Editor         string `json:"editor"`
	EditorEmail    string `json:"editor_email"`
}

// Item is one entry of the output feed
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	EditorEmail string    `json:"editor_email"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// Document is a complete feed. Items are kept in output order.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Items    []Item   `json:"items"`
}
