package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"cutoutly/internal/domain"
)

// MemoryJobRepository keeps jobs in process memory. Jobs are copied on every
// read and write so callers never alias stored state.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return domain.ErrInvalidInput
	}
	stored := job.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.LastAdvancedAt.IsZero() {
		stored.LastAdvancedAt = stored.CreatedAt
	}
	r.jobs[job.ID] = stored
	return nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryJobRepository) Update(ctx context.Context, jobID, ownerID string, expectedStage domain.Stage, patch domain.JobPatch) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing || job.Stage != expectedStage {
		return nil, domain.ErrStaleJob
	}
	if patch.LastAdvancedAt.IsZero() {
		patch.LastAdvancedAt = time.Now().UTC()
	}
	patch.Apply(job)
	return job.Clone(), nil
}

func (r *MemoryJobRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	var out []domain.Job
	for _, job := range r.jobs {
		if job.OwnerID == ownerID {
			c := job.Clone()
			c.TempResult = nil
			out = append(out, *c)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepository) Delete(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	delete(r.jobs, jobID)
	return job, nil
}

func (r *MemoryJobRepository) FailStalled(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	failed := domain.JobStatusFailed
	var ids []string
	for id, job := range r.jobs {
		if job.Status != domain.JobStatusProcessing || !job.LastAdvancedAt.Before(cutoff) {
			continue
		}
		domain.JobPatch{Status: &failed, ErrorMessage: &message, ClearTempResult: true, LastAdvancedAt: now}.Apply(job)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Put stores job as-is, bypassing the stage check. Tests use it to seed
// arbitrary states.
func (r *MemoryJobRepository) Put(job *domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)

// MemorySavedFaceRepository keeps saved faces in process memory.
type MemorySavedFaceRepository struct {
	mu    sync.Mutex
	faces map[string]domain.SavedFace
}

func NewMemorySavedFaceRepository() *MemorySavedFaceRepository {
	return &MemorySavedFaceRepository{faces: make(map[string]domain.SavedFace)}
}

func (r *MemorySavedFaceRepository) Create(ctx context.Context, face *domain.SavedFace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.faces[face.ID]; exists {
		return domain.ErrInvalidInput
	}
	r.faces[face.ID] = *face
	return nil
}

func (r *MemorySavedFaceRepository) Get(ctx context.Context, faceID, ownerID string) (*domain.SavedFace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	face, ok := r.faces[faceID]
	if !ok || face.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return &face, nil
}

func (r *MemorySavedFaceRepository) List(ctx context.Context, ownerID string) ([]domain.SavedFace, error) {
	r.mu.Lock()
	var out []domain.SavedFace
	for _, face := range r.faces {
		if face.OwnerID == ownerID {
			out = append(out, face)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemorySavedFaceRepository) Delete(ctx context.Context, faceID, ownerID string) (*domain.SavedFace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	face, ok := r.faces[faceID]
	if !ok || face.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	delete(r.faces, faceID)
	return &face, nil
}

var _ domain.SavedFaceRepository = (*MemorySavedFaceRepository)(nil)
