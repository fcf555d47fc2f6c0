// internal/domain/inspector.go
package domain

import (
	"context"
	"fmt"
	"time"
)

// Inspector is a worker eligible to receive complaint assignments.
type Inspector struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the inspector definition is valid.
func (i *Inspector) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("inspector ID cannot be empty")
	}
	if i.Name == "" {
		return fmt.Errorf("inspector name cannot be empty")
	}
	return nil
}

// InspectorRepository defines the interface for persisting and retrieving inspectors.
type InspectorRepository interface {
	Save(ctx context.Context, inspector *Inspector) error
	Get(ctx context.Context, id string) (*Inspector, error)
	// List returns every inspector, active or not, ordered by ID.
	List(ctx context.Context) ([]*Inspector, error)
	// ListActive returns the rotation pool: active inspectors ordered by ID.
	ListActive(ctx context.Context) ([]*Inspector, error)
}
