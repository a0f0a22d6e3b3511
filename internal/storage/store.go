package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrObjectNotFound reports a missing key on Download.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore is the blob contract the job machine depends on. Delete of a
// missing key succeeds.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// TempInputKey is where a submitted image is parked until the job finishes.
func TempInputKey(ownerID, jobID, ext string) string {
	return fmt.Sprintf("temp/%s/%s/input.%s", ownerID, jobID, strings.TrimPrefix(ext, "."))
}

// WorkingKey is the normalized PNG copy fed to the generation API.
func WorkingKey(ownerID, jobID string) string {
	return fmt.Sprintf("temp/%s/%s/working.png", ownerID, jobID)
}

// ResultKey is the durable location of a job's output image.
func ResultKey(ownerID, jobID string) string {
	return fmt.Sprintf("results/%s/%s.png", ownerID, jobID)
}

// FaceKey is the durable location of a saved face image.
func FaceKey(ownerID, faceID, ext string) string {
	return fmt.Sprintf("faces/%s/%s.%s", ownerID, faceID, strings.TrimPrefix(ext, "."))
}

// IsTempKey reports whether key lives under the temp prefix and may be
// removed by job cleanup.
func IsTempKey(key string) bool {
	return strings.HasPrefix(strings.TrimLeft(key, "/"), "temp/")
}

func joinURL(base, key string) string {
	if base == "" {
		return "/" + strings.TrimLeft(key, "/")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
