package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"splitter/internal/remote"
)

// Store keeps documents in process memory. It is used for local development
// and as the remote in tests.
type Store struct {
	mu      sync.Mutex
	docs    map[string][]byte
	failErr error
	writes  int
}

var (
	_ remote.DocumentStore = (*Store)(nil)
	_ remote.Describer     = (*Store)(nil)
)

func New() *Store {
	return &Store{docs: map[string][]byte{}}
}

// NewFromFile seeds document id with the contents of path. A missing file
// leaves the store empty.
func NewFromFile(id, path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	s.Put(id, data)
	return s, nil
}

// Put stores a copy of data under id.
func (s *Store) Put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = append([]byte(nil), data...)
}

// FailWith makes every following call return err until it is called with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Writes reports how many successful Replace calls the store has served.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) Fetch(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	data, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrUnavailable, id)
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) Replace(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.docs[id] = append([]byte(nil), data...)
	s.writes++
	return nil
}

func (s *Store) Describe(_ context.Context, id string) (remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return remote.Document{}, s.failErr
	}
	if _, ok := s.docs[id]; !ok {
		return remote.Document{}, fmt.Errorf("%w: %s", remote.ErrUnavailable, id)
	}
	return remote.Document{ID: id, Name: "mem:" + id}, nil
}

func (s *Store) WhoAmI(context.Context) (remote.Identity, error) {
	return remote.Identity{Email: "local@memory", Name: "memory store"}, nil
}
