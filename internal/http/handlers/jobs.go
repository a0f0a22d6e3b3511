package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cutoutly/internal/domain"
	"cutoutly/internal/jobs"
	"cutoutly/internal/middleware"
)

type submitJobRequest struct {
	Kind        domain.JobKind  `json:"kind"`
	Options     json.RawMessage `json:"options"`
	ImageBase64 string          `json:"image_base64"`
	SavedFaceID string          `json:"saved_face_id"`
	Locale      string          `json:"locale"`
}

type jobListResponse struct {
	Jobs   []jobs.Result `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// SubmitJob creates a job at its initial stage. Clients then call AdvanceJob
// until the job is terminal.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	var req submitJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image_base64 is not valid base64")
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	res, err := a.Machine.Submit(r.Context(), jobs.SubmitRequest{
		OwnerID:     ownerID,
		Kind:        req.Kind,
		Options:     req.Options,
		Image:       image,
		SavedFaceID: req.SavedFaceID,
		Locale:      locale,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "limit must be a number")
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok || offset < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "offset must be a non-negative number")
		return
	}
	list, err := a.Machine.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []jobs.Result{}
	}
	a.json(w, http.StatusOK, jobListResponse{Jobs: list, Limit: jobs.PageLimit(limit), Offset: offset})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	res, err := a.Machine.Status(r.Context(), chi.URLParam(r, "jobID"), ownerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// AdvanceJob runs one stage of the job. A concurrent advance of the same job
// answers 200 with message "already in progress".
func (a *App) AdvanceJob(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	res, err := a.Machine.Advance(r.Context(), chi.URLParam(r, "jobID"), ownerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) JobArchive(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	jobID := chi.URLParam(r, "jobID")
	data, err := a.Machine.Archive(r.Context(), jobID, ownerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="cutoutly-`+jobID+`.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	if err := a.Machine.Delete(r.Context(), chi.URLParam(r, "jobID"), ownerID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
