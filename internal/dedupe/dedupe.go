// Package dedupe tracks which postings a run has already handed out so a
// posting listed under several partitions is fetched once.
package dedupe

import (
	"context"
	"sync"
)

// Set records keys. MarkIfNew returns true the first time a key is seen.
type Set interface {
	MarkIfNew(ctx context.Context, key string) (bool, error)
}

// Factory builds the seen-set for one run.
type Factory func(runID string) Set

// MemorySet is a process-local Set.
type MemorySet struct {
	seen sync.Map
}

// NewMemorySet returns an empty MemorySet.
func NewMemorySet() *MemorySet {
	return &MemorySet{}
}

// MarkIfNew stores key if it has not been seen before and returns true.
func (s *MemorySet) MarkIfNew(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	_, loaded := s.seen.LoadOrStore(key, struct{}{})
	return !loaded, nil
}

// MemoryFactory returns a fresh MemorySet per run.
func MemoryFactory() Factory {
	return func(string) Set { return NewMemorySet() }
}
