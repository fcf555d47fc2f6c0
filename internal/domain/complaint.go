// internal/domain/complaint.go
package domain

import (
	"context"
	"fmt"
	"time"
)

// Complaint is the assignment record linking a complaint to its inspector.
// Only InspectorID and AssignedAt change after creation, and only once.
type Complaint struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	InspectorID string    `json:"inspector_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
}

// Assigned reports whether an inspector has been recorded on the complaint.
func (c *Complaint) Assigned() bool {
	return c.InspectorID != ""
}

// Validate checks if the complaint record is valid.
func (c *Complaint) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("complaint ID cannot be empty")
	}
	if c.Subject == "" {
		return fmt.Errorf("complaint subject cannot be empty")
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("complaint creation time cannot be zero")
	}
	return nil
}

// ComplaintRepository defines the interface for persisting and retrieving complaints.
type ComplaintRepository interface {
	// Create stores a new complaint. It fails if the ID already exists.
	Create(ctx context.Context, complaint *Complaint) error
	Get(ctx context.Context, id string) (*Complaint, error)
	Delete(ctx context.Context, id string) error
	// ListRecent returns at most limit complaints, most recently created first.
	ListRecent(ctx context.Context, limit int) ([]*Complaint, error)
	// ListUnassigned returns complaints without an inspector, oldest first.
	ListUnassigned(ctx context.Context) ([]*Complaint, error)
	// SetInspector records the assignment on an existing complaint.
	SetInspector(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time) error
}
