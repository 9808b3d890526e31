package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// diagnosticText renders a non-fatal store failure for the client.
func diagnosticText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
