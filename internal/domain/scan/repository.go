package scan

import "context"

// Repository defines the interface for scan job persistence. Implementations
// must return defensive copies: callers may mutate what they get back without
// affecting stored state.
type Repository interface {
	// Save persists a job snapshot, replacing any previous one for the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its ID.
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindAll retrieves every stored job.
	FindAll(ctx context.Context) ([]*Job, error)
}
