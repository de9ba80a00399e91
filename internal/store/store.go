// Package store persists alert records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kubesentry/kubesentry/internal/types"
)

// ErrNotFound is returned when no alert has the requested id
var ErrNotFound = errors.New("alert not found")

// Store is the persistence contract for alert records. Implementations do not enforce
// one-active-per-key; the alert engine does.
type Store interface {
	// Get returns the alert with the given id, or ErrNotFound
	Get(ctx context.Context, id string) (*types.Alert, error)
	// FindActive returns the unresolved alert for key, or nil when there is none
	FindActive(ctx context.Context, key string) (*types.Alert, error)
	// FindActiveByResource returns all unresolved alerts for one resource.
	// An empty namespace matches cluster-scoped resources.
	FindActiveByResource(ctx context.Context, resourceType, name, namespace string) ([]types.Alert, error)
	// Create stores a new record, assigning ID and CreatedAt when empty
	Create(ctx context.Context, alert *types.Alert) error
	// Resolve marks an alert resolved at the given time. Resolving an already resolved
	// alert is a no-op and keeps the original ResolvedAt.
	Resolve(ctx context.Context, id string, at time.Time) error
	// List returns alerts matching filter, newest first
	List(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error)
	// Delete removes an alert record
	Delete(ctx context.Context, id string) error
}
