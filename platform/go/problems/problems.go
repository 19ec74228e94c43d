// Package problems renders RFC 9457 problem details.
package problems

import (
	"encoding/json"
	"net/http"
)

const ContentType = "application/problem+json"

const (
	TypeValidation   = "https://hubmetrix.io/problems/validation-error"
	TypeUnauthorized = "https://hubmetrix.io/problems/unauthorized"
	TypeNotFound     = "https://hubmetrix.io/problems/not-found"
	TypeConflict     = "https://hubmetrix.io/problems/conflict"
	TypeUpstream     = "https://hubmetrix.io/problems/upstream-error"
	TypeInternal     = "https://hubmetrix.io/problems/internal-error"
)

// ProblemDetails is the error body returned by every endpoint.
type ProblemDetails struct {
	Type   *string              `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail *string              `json:"detail,omitempty"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

// New builds a problem; empty detail and problemType are omitted.
func New(title, detail, problemType string, status int) ProblemDetails {
	problem := ProblemDetails{
		Title:  title,
		Status: status,
	}
	if detail != "" {
		problem.Detail = &detail
	}
	if problemType != "" {
		problem.Type = &problemType
	}
	return problem
}

// Write encodes problem with its status code.
func Write(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// ValidatorErrorHandler adapts Write to the OpenAPI request validator.
func ValidatorErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	problemType := TypeValidation
	title := "Validation failed"
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		problemType, title = TypeUnauthorized, "Unauthorized"
	case http.StatusNotFound:
		problemType, title = TypeNotFound, "Resource not found"
	}
	Write(w, New(title, message, problemType, statusCode))
}
