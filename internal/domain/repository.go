package domain

import (
	"context"
	"time"
)

// JobRepository persists jobs. Every method except FailStalled is scoped by
// owner: a job belonging to someone else is reported as ErrNotFound.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID, ownerID string) (*Job, error)
	// Update applies patch only while the job is still processing at
	// expectedStage. A job that exists but moved on yields ErrStaleJob.
	Update(ctx context.Context, jobID, ownerID string, expectedStage Stage, patch JobPatch) (*Job, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]Job, error)
	Delete(ctx context.Context, jobID, ownerID string) (*Job, error)
	// FailStalled marks processing jobs idle since before cutoff as failed
	// and returns their ids.
	FailStalled(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

// SavedFaceRepository persists reusable face images.
type SavedFaceRepository interface {
	Create(ctx context.Context, face *SavedFace) error
	Get(ctx context.Context, faceID, ownerID string) (*SavedFace, error)
	List(ctx context.Context, ownerID string) ([]SavedFace, error)
	Delete(ctx context.Context, faceID, ownerID string) (*SavedFace, error)
}
