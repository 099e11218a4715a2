// Package state persists the set of document numbers still being processed
// server-side, so a restarted client resumes tracking where it left off.
package state

// Store holds the processing set under a single durable key. An absent key
// and an empty set are equivalent; saving an empty set clears the key.
type Store interface {
	Load() ([]int, error)
	Save(ids []int) error
	Clear() error
}
