package model

import (
	"errors"
	"sort"

	"crawlfleet/pkg/constants"
)

// ErrWorkerNotFound returned when a worker name is not part of the fleet
var ErrWorkerNotFound = errors.New("worker not found")

// Fleet the full set of worker records tracked under one persisted state.
// A Fleet has a single owner at a time; callers that hand it to another
// goroutine pass a Clone.
type Fleet struct {
	workers map[string]*Worker
}

// NewFleet creates an empty fleet
func NewFleet() *Fleet {
	return &Fleet{workers: make(map[string]*Worker)}
}

// Len number of workers in the fleet
func (f *Fleet) Len() int {
	return len(f.workers)
}

// Has reports whether a worker with this name exists
func (f *Fleet) Has(name string) bool {
	_, ok := f.workers[name]
	return ok
}

// Get returns a copy of the named worker
func (f *Fleet) Get(name string) (*Worker, error) {
	w, ok := f.workers[name]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return w.Clone(), nil
}

// Put creates or replaces a worker record
func (f *Fleet) Put(w *Worker) {
	c := w.Clone()
	f.workers[c.Name] = c
}

// Update applies fn to the named worker in place
func (f *Fleet) Update(name string, fn func(w *Worker)) error {
	w, ok := f.workers[name]
	if !ok {
		return ErrWorkerNotFound
	}
	fn(w)
	return nil
}

// SetStatus field-level update of a worker's status
func (f *Fleet) SetStatus(name string, status constants.WorkerStatus) error {
	return f.Update(name, func(w *Worker) { w.Status = status })
}

// Names lists worker names ordered by tag, id, then name
func (f *Fleet) Names() []string {
	workers := make([]*Worker, 0, len(f.workers))
	for _, w := range f.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		a, b := workers[i], workers[j]
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Name < b.Name
	})
	names := make([]string, len(workers))
	for i, w := range workers {
		names[i] = w.Name
	}
	return names
}

// List returns copies of all workers in Names order
func (f *Fleet) List() []*Worker {
	names := f.Names()
	out := make([]*Worker, len(names))
	for i, name := range names {
		out[i] = f.workers[name].Clone()
	}
	return out
}

// IsRunning reports whether the named worker is Running; unknown names are false
func (f *Fleet) IsRunning(name string) bool {
	return f.hasStatus(name, constants.WorkerStatusRunning)
}

// IsStopped reports whether the named worker is Stopped; unknown names are false
func (f *Fleet) IsStopped(name string) bool {
	return f.hasStatus(name, constants.WorkerStatusStopped)
}

// IsDone reports whether the named worker is Done; unknown names are false
func (f *Fleet) IsDone(name string) bool {
	return f.hasStatus(name, constants.WorkerStatusDone)
}

func (f *Fleet) hasStatus(name string, status constants.WorkerStatus) bool {
	w, ok := f.workers[name]
	if !ok {
		return false
	}
	return w.Status == status
}

// AllDone reports whether every worker has reached Done.
// An empty fleet is vacuously done.
func (f *Fleet) AllDone() bool {
	for _, w := range f.workers {
		if w.Status != constants.WorkerStatusDone {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the fleet
func (f *Fleet) Clone() *Fleet {
	c := NewFleet()
	for name, w := range f.workers {
		c.workers[name] = w.Clone()
	}
	return c
}
