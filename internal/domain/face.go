package domain

import "time"

// SavedFace is a reusable input image kept per owner so repeat jobs can skip
// the upload.
type SavedFace struct {
	ID        string
	OwnerID   string
	ImageRef  string
	CreatedAt time.Time
}
