package transfer

import (
	"sync"
)

// Store is the authoritative in-memory mapping of job id to job. It
// exclusively owns all Job instances: readers get value snapshots,
// and every field mutation happens through update under the lock.
//
// Cross-field consistency (status and progress moving together) comes
// from the single-writer rule, not from the store: only the scheduler
// and the cancel path write, and each write is one update call.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates an empty record store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create registers a new job. The store takes ownership of the pointer.
func (s *Store) Create(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns snapshots of all known jobs.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Remove deletes the job with the given id. It reports whether the
// job existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Stats returns the number of jobs per status.
func (s *Store) Stats() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[Status]int)
	for _, j := range s.jobs {
		stats[j.Status]++
	}
	return stats
}

// update applies fn to the job with the given id while holding the
// write lock, and returns a snapshot of the result. All mutations of
// job fields go through here so readers never observe a half-applied
// transition.
func (s *Store) update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	fn(j)
	return *j, true
}
