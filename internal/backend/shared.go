package backend

import (
	"context"
	"fmt"
	"sync"
)

// Factory builds a Client. It is called at most once per successful
// initialisation.
type Factory func(ctx context.Context) (Client, error)

// Shared lazily creates a single process-wide Client. Concurrent first
// callers wait for the same creation; a failed creation is not cached.
type Shared struct {
	mu      sync.Mutex
	factory Factory
	client  Client
}

// NewShared returns a Shared that builds its client with f.
func NewShared(f Factory) *Shared {
	return &Shared{factory: f}
}

// Static wraps an existing client.
func Static(c Client) *Shared {
	return &Shared{client: c}
}

// Get returns the shared client, creating it on first use.
func (s *Shared) Get(ctx context.Context) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if s.factory == nil {
		return nil, fmt.Errorf("backend client not configured")
	}

	c, err := s.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("start backend client: %w", err)
	}
	s.client = c
	return c, nil
}
