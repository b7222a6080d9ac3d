package server

import (
	"encoding/json"
	"net/http"

	"tripartite/native/arbitration"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// statusForKind maps a registry failure category to an HTTP status.
func statusForKind(kind arbitration.Kind) int {
	switch kind {
	case arbitration.KindAuthorization:
		return http.StatusForbidden
	case arbitration.KindPhase, arbitration.KindAlreadySet:
		return http.StatusConflict
	case arbitration.KindTiming:
		return http.StatusTooEarly
	case arbitration.KindAmount, arbitration.KindArgument:
		return http.StatusBadRequest
	case arbitration.KindNotFound:
		return http.StatusNotFound
	case arbitration.KindTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind := arbitration.Classify(err)
	message := err.Error()
	if kind == arbitration.KindInternal {
		message = "internal error"
	}
	writeJSONError(w, statusForKind(kind), message, string(kind))
}
