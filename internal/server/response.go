package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/drewdunne/releasetrain/internal/train"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: errorPayload{Code: code, Message: message}})
}

// runStatus maps a run error to its HTTP status.
func runStatus(err error) int {
	var validation *train.ValidationError
	var external *train.ExternalServiceError
	switch {
	case errors.Is(err, train.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &external):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondRunError writes the error message as plain text.
func respondRunError(w http.ResponseWriter, err error) {
	status := runStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Release train failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}
