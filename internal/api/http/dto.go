package http

import (
	"inspector-rotation/internal/domain"
)

// SubmitComplaintRequest is the body of POST /complaints.
type SubmitComplaintRequest struct {
	Subject     string `json:"subject" validate:"required,min=1,max=256"`
	Description string `json:"description" validate:"max=4096"`
}

// RegisterInspectorRequest is the body of POST /inspectors.
type RegisterInspectorRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=128"`
	Email string `json:"email" validate:"omitempty,email"`
}

// SetActiveRequest is the body of PUT /inspectors/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// RotationResponse is the body of GET /rotation.
type RotationResponse struct {
	Cursor    domain.RotationState `json:"cursor"`
	Persisted bool                 `json:"persisted"`
	PoolSize  int                  `json:"pool_size"`
	Pool      []*domain.Inspector  `json:"pool"`
	Next      *domain.Inspector    `json:"next,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
