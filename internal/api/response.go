// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/logging"
)

// apiResponse is the envelope for every JSON endpoint.
type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

// apiError carries a machine-readable code alongside the message.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes used across the API.
const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeInternalError    = "INTERNAL_ERROR"
	errCodeUnavailable      = "SERVICE_UNAVAILABLE"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Err(err).Msg("encode api response")
	}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, apiResponse{Success: false, Error: &apiError{Code: code, Message: message}})
}

func respondValidationError(w http.ResponseWriter, message string, details any) {
	respondJSON(w, http.StatusBadRequest, apiResponse{
		Success: false,
		Error:   &apiError{Code: errCodeValidationFailed, Message: message, Details: details},
	})
}

func respondInternalError(w http.ResponseWriter, err error) {
	logging.Err(err).Msg("api internal error")
	respondError(w, http.StatusInternalServerError, errCodeInternalError, "internal error")
}
