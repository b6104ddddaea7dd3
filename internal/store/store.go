// Package store persists event definitions and tells subscribers when they
// change.
package store

import (
	"context"
	"errors"

	"wallcal/internal/model"
)

var ErrNotFound = errors.New("definition not found")

// Store is the definition list behind every view. Every successful mutation
// publishes the full current list to subscribers.
type Store interface {
	// All returns every definition in insertion order.
	All(ctx context.Context) ([]model.Definition, error)
	Get(ctx context.Context, id string) (model.Definition, error)
	// Create stores def under a fresh id; def.ID is ignored.
	Create(ctx context.Context, def model.Definition) (model.Definition, error)
	Update(ctx context.Context, id string, patch model.Patch) (model.Definition, error)
	Delete(ctx context.Context, id string) error
	// ReplaceAll swaps the whole list, keeping the ids it is given.
	ReplaceAll(ctx context.Context, defs []model.Definition) error

	// Revision increases on every mutation.
	Revision() uint64
	Subscribe(buffer int) *Subscription
}
