package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cutoutly/internal/domain"
	"cutoutly/internal/infra"
	"cutoutly/internal/sqlinline"
)

// SavedFaceRepositoryPG implements domain.SavedFaceRepository on PostgreSQL.
type SavedFaceRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewSavedFaceRepository(sql infra.SQLExecutor) *SavedFaceRepositoryPG {
	return &SavedFaceRepositoryPG{sql: sql}
}

func (r *SavedFaceRepositoryPG) Create(ctx context.Context, face *domain.SavedFace) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertSavedFace, face.ID, face.OwnerID, face.ImageRef, face.CreatedAt); err != nil {
		return fmt.Errorf("insert saved face: %w", err)
	}
	return nil
}

func (r *SavedFaceRepositoryPG) Get(ctx context.Context, faceID, ownerID string) (*domain.SavedFace, error) {
	if !isUUID(faceID) {
		return nil, domain.ErrNotFound
	}
	face, err := scanFace(r.sql.QueryRow(ctx, sqlinline.QSelectSavedFace, faceID, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select saved face: %w", err)
	}
	return face, nil
}

func (r *SavedFaceRepositoryPG) List(ctx context.Context, ownerID string) ([]domain.SavedFace, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListSavedFaces, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list saved faces: %w", err)
	}
	defer rows.Close()
	var faces []domain.SavedFace
	for rows.Next() {
		face, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saved face: %w", err)
		}
		faces = append(faces, *face)
	}
	return faces, rows.Err()
}

func (r *SavedFaceRepositoryPG) Delete(ctx context.Context, faceID, ownerID string) (*domain.SavedFace, error) {
	if !isUUID(faceID) {
		return nil, domain.ErrNotFound
	}
	face, err := scanFace(r.sql.QueryRow(ctx, sqlinline.QDeleteSavedFace, faceID, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("delete saved face: %w", err)
	}
	return face, nil
}

func scanFace(row pgx.Row) (*domain.SavedFace, error) {
	var face domain.SavedFace
	if err := row.Scan(&face.ID, &face.OwnerID, &face.ImageRef, &face.CreatedAt); err != nil {
		return nil, err
	}
	return &face, nil
}

var _ domain.SavedFaceRepository = (*SavedFaceRepositoryPG)(nil)
