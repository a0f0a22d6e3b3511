package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cutoutly/internal/domain"
)

type saveFaceRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type faceResponse struct {
	FaceID    string    `json:"face_id"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *App) SaveFace(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	var req saveFaceRequest
	if !a.decode(w, r, &req) {
		return
	}
	data, err := decodeImage(req.ImageBase64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image_base64 is not valid base64")
		return
	}
	face, err := a.Machine.SaveFace(r.Context(), ownerID, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, a.faceResponse(face))
}

func (a *App) ListFaces(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	faces, err := a.Machine.ListFaces(r.Context(), ownerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]faceResponse, 0, len(faces))
	for i := range faces {
		out = append(out, a.faceResponse(&faces[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"faces": out})
}

func (a *App) DeleteFace(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	if err := a.Machine.DeleteFace(r.Context(), chi.URLParam(r, "faceID"), ownerID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) faceResponse(face *domain.SavedFace) faceResponse {
	return faceResponse{
		FaceID:    face.ID,
		ImageURL:  a.Machine.PublicURL(face.ImageRef),
		CreatedAt: face.CreatedAt,
	}
}
