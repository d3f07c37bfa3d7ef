// Package httputils writes the JSON envelope shared by every endpoint of the
// users service: {success, message, data, errors, pagination}.
package httputils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Envelope is the body of every response.
type Envelope struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message,omitempty"`
	Data       interface{}         `json:"data,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// NewPagination computes the page metadata for total items split into pages
// of perPage.
func NewPagination(page, perPage, total int) *Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return &Pagination{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("failed to marshal response")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	WriteJSON(w, r, status, Envelope{Success: true, Message: message, Data: data})
}

func WritePage(w http.ResponseWriter, r *http.Request, data interface{}, pagination *Pagination) {
	WriteJSON(w, r, http.StatusOK, Envelope{Success: true, Data: data, Pagination: pagination})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	event := log.Debug()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Str("remote_addr", r.RemoteAddr).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg(message)
	WriteJSON(w, r, status, Envelope{Success: false, Message: message})
}

// WriteValidationError responds 422 with per-field messages.
func WriteValidationError(w http.ResponseWriter, r *http.Request, errors map[string][]string) {
	WriteJSON(w, r, http.StatusUnprocessableEntity, Envelope{
		Success: false,
		Message: "validation failed",
		Errors:  errors,
	})
}
