// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// IDResponse returns the id of a created resource.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse reports a completed operation without payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps list results.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}
