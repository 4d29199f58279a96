// Package memory is an in-process mirror writer for tests and the memory
// backend.
package memory

import (
	"context"
	"fmt"
	"sync"
)

type Store struct {
	mu   sync.Mutex
	rows [][]string
}

func New() *Store { return &Store{} }

func (s *Store) AppendRows(_ context.Context, rows [][]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows = append(s.rows, append([]string(nil), row...))
	}
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
