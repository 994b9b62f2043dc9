package folds

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiryteo/lumin/internal/tensor"
)

// MemoryStore is an in-process Store. Stored matrices are copied on the way
// in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	folds []map[string]tensor.Matrix
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) FoldCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.folds), nil
}

func (s *MemoryStore) ReadColumn(_ context.Context, foldID int, name string) (tensor.Matrix, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if foldID < 0 || foldID >= len(s.folds) {
		return tensor.Matrix{}, false, nil
	}
	m, ok := s.folds[foldID][name]
	if !ok {
		return tensor.Matrix{}, false, nil
	}
	return m.Clone(), true, nil
}

func (s *MemoryStore) WriteColumn(_ context.Context, foldID int, name string, m tensor.Matrix) error {
	if foldID < 0 {
		return fmt.Errorf("fold id %d: %w", foldID, ErrFoldNotFound)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("write fold %d column %s: %w", foldID, name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.folds) <= foldID {
		s.folds = append(s.folds, map[string]tensor.Matrix{})
	}
	if old, ok := s.folds[foldID][name]; ok && !old.SameShape(m) {
		return fmt.Errorf("fold %d column %s is %dx%d, got %dx%d: %w",
			foldID, name, old.Rows, old.Cols, m.Rows, m.Cols, ErrShapeMismatch)
	}
	s.folds[foldID][name] = m.Clone()
	return nil
}
