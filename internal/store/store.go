// Package store provides lead persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

// LeadRepository defines the interface for persisting registration leads.
type LeadRepository interface {
	// SaveLead writes a validated lead. Saving an existing ID is a no-op.
	SaveLead(ctx context.Context, lead *domain.StoredLead) error

	// GetLead retrieves a lead by ID, returning ErrNotFound if absent.
	GetLead(ctx context.Context, id string) (*domain.StoredLead, error)

	// ListLeads returns the most recent leads, newest first.
	ListLeads(ctx context.Context, limit int) ([]*domain.StoredLead, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
