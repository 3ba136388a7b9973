package config

import "sync"

// Draft holds a two-phase-commit value: the committed original and an edited
// candidate. Commit attempts the backend call and promotes the candidate on
// success; on failure the candidate rolls back to the original, so callers
// never need their own rollback logic.
type Draft[T any] struct {
	mu        sync.Mutex
	original  T
	candidate T
}

// NewDraft creates a draft whose original and candidate both equal value.
func NewDraft[T any](value T) *Draft[T] {
	return &Draft[T]{original: value, candidate: value}
}

// Set replaces the candidate value. The original is untouched.
func (d *Draft[T]) Set(value T) {
	d.mu.Lock()
	d.candidate = value
	d.mu.Unlock()
}

// Value returns the current candidate.
func (d *Draft[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.candidate
}

// Committed returns the last successfully committed value.
func (d *Draft[T]) Committed() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.original
}

// Commit runs apply with the candidate. On success the candidate becomes the
// new original; on failure the candidate resets to the original and the
// error is returned.
func (d *Draft[T]) Commit(apply func(T) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := apply(d.candidate); err != nil {
		d.candidate = d.original
		return err
	}
	d.original = d.candidate
	return nil
}
