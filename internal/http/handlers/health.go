package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	JobStore string `json:"job_store,omitempty"`
	Storage  string `json:"storage,omitempty"`
}

// Health is the unauthenticated liveness probe.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok"}
	if a.Config != nil {
		res.JobStore = a.Config.JobStore
		res.Storage = a.Config.StorageDriver
	}
	a.json(w, http.StatusOK, res)
}
