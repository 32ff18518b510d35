// Package memory provides the in-memory job store backing the API and CLI.
// Jobs are stored as deep copies, so callers can never mutate store state
// through a returned pointer.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// Store implements scan.Repository on a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*scan.Job
}

// NewStore creates an empty in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*scan.Job)}
}

// Save stores a deep copy of the job, overwriting any previous snapshot with
// the same ID.
func (s *Store) Save(ctx context.Context, job *scan.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID()] = job.Clone()
	return nil
}

// FindByID returns a deep copy of the job with the given ID.
func (s *Store) FindByID(ctx context.Context, id string) (*scan.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sharederrors.ErrJobNotFound
	}
	return job.Clone(), nil
}

// FindAll returns deep copies of every stored job, newest first.
func (s *Store) FindAll(ctx context.Context) ([]*scan.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scan.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out, nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
