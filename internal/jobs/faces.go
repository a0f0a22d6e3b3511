package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cutoutly/internal/domain"
	"cutoutly/internal/storage"
)

// SaveFace stores a reusable input image for later submissions.
func (m *Machine) SaveFace(ctx context.Context, ownerID string, data []byte) (*domain.SavedFace, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if m.faces == nil {
		return nil, fmt.Errorf("%w: saved faces are not available", domain.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is required", domain.ErrInvalidInput)
	}
	mime, ext, err := m.checkImage(data)
	if err != nil {
		return nil, err
	}
	face := &domain.SavedFace{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: m.now(),
	}
	face.ImageRef = storage.FaceKey(ownerID, face.ID, ext)
	if err := m.store.Upload(ctx, face.ImageRef, data, mime); err != nil {
		return nil, fmt.Errorf("store face image: %w", err)
	}
	if err := m.faces.Create(ctx, face); err != nil {
		_ = m.store.Delete(context.WithoutCancel(ctx), face.ImageRef)
		return nil, fmt.Errorf("create saved face: %w", err)
	}
	return face, nil
}

// ListFaces returns the owner's saved faces, newest first.
func (m *Machine) ListFaces(ctx context.Context, ownerID string) ([]domain.SavedFace, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if m.faces == nil {
		return nil, nil
	}
	return m.faces.List(ctx, ownerID)
}

// DeleteFace removes a saved face and its image. Pending jobs that still read
// the image fail at their input stage.
func (m *Machine) DeleteFace(ctx context.Context, faceID, ownerID string) error {
	if ownerID == "" {
		return domain.ErrUnauthorized
	}
	if m.faces == nil {
		return domain.ErrNotFound
	}
	face, err := m.faces.Delete(ctx, faceID, ownerID)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, face.ImageRef); err != nil {
		m.logger.Warn().Err(err).Str("face_id", face.ID).Msg("jobs: delete face image failed")
	}
	return nil
}
