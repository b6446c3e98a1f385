package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes let clients tell apart failures that share a status, such as an
// empty list and an optimizer rejection (both 422).
const (
	codeUnauthorized = "unauthorized"
	codeBadRequest   = "bad_request"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeEmptyList    = "empty_list"
	codeInProgress   = "optimization_in_progress"
	codeRejected     = "optimizer_rejected"
	codeUnavailable  = "optimizer_unavailable"
	codeInternal     = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" example:"not_found" validate:"required"`
}

func errorBody(code, msg string) errResponse {
	return errResponse{Error: msg, Code: code}
}
