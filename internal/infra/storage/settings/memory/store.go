// Package memory provides a process-local settings store.
package memory

import (
	"context"
	"sync"

	"github.com/ahrav/codejobs/internal/domain/settings"
)

var _ settings.Store = (*Store)(nil)

// Store keeps settings in a map for the life of the process.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore creates an empty Store.
func NewStore() *Store { return &Store{values: make(map[string]string)} }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
