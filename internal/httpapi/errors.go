package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"voxstudio/internal/ingest"
	"voxstudio/pkg/model"
)

type errorResponse struct {
	Error string          `json:"error"`
	Kind  model.ErrorKind `json:"kind"`
}

// statusFor maps a run error kind to an HTTP status
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.ErrorKindValidation:
		var maxErr *http.MaxBytesError
		if errors.Is(err, ingest.ErrTooLarge) || errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case model.ErrorKindTransport, model.ErrorKindParse:
		return http.StatusBadGateway
	case model.ErrorKindModel:
		if model.StageOf(err) == "load" {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Kind: model.KindOf(err)})
}

func writeStatusError(w http.ResponseWriter, status int, kind model.ErrorKind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
