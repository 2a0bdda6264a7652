package domain

import "time"

// Document is the opaque signing target. Content is whatever the blob store
// holds for the current version; the engine only ever hashes it.
type Document struct {
	ID        string
	OwnerID   string
	Name      string
	MediaType string
	Content   []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
