package handlers

import "net/http"

// Root reports that the API is reachable.
func Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "API is up and running..."})
}

// Healthz is the liveness probe.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "ok"})
}
