// Package storage holds the ordered complaint list shared by every intake
// channel.
//
// Two implementations exist:
//  1. Memory: the authoritative newest-first list behind one RWMutex
//  2. Persistent: Memory plus a badger write-through log that reloads the
//     list on restart
//
// Thread-safety:
//   - Every operation takes the single store lock
//   - Mutations are last-write-wins; the id is the only correlation key
package storage

import (
	"sync"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
)

// Store is the complaint repository consumed by the service layer, the
// evidence gate and the email agent.
type Store interface {
	// Insert prepends c so that List returns newest first.
	Insert(c complaint.Complaint) error

	// InsertIfAbsent inserts c only when no complaint with its id exists.
	// The check and the insert happen under one lock.
	InsertIfAbsent(c complaint.Complaint) (bool, error)

	// FindByID returns a copy of the complaint with the given id.
	FindByID(id string) (complaint.Complaint, bool)

	// Mutate applies fn to the stored complaint under the store lock.
	// Returns a NotFoundError when id is unknown.
	Mutate(id string, fn func(c *complaint.Complaint)) (complaint.Complaint, error)

	// List returns a snapshot of all complaints, newest first.
	List() []complaint.Complaint
}

// Memory is the in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items []complaint.Complaint // newest first
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(c complaint.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prepend(c)
	return nil
}

func (m *Memory) InsertIfAbsent(c complaint.Complaint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(c.ID) >= 0 {
		return false, nil
	}
	m.prepend(c)
	return true, nil
}

// prepend must be called with the lock held.
func (m *Memory) prepend(c complaint.Complaint) {
	m.items = append(m.items, complaint.Complaint{})
	copy(m.items[1:], m.items)
	m.items[0] = c
}

func (m *Memory) FindByID(id string) (complaint.Complaint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexOf(id); i >= 0 {
		return m.items[i], true
	}
	return complaint.Complaint{}, false
}

func (m *Memory) Mutate(id string, fn func(c *complaint.Complaint)) (complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return complaint.Complaint{}, apperrors.NewNotFoundError(id)
	}
	fn(&m.items[i])
	return m.items[i], nil
}

func (m *Memory) List() []complaint.Complaint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]complaint.Complaint, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the number of stored complaints.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// indexOf must be called with the lock held.
func (m *Memory) indexOf(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

// load replaces the contents with items already ordered newest first.
func (m *Memory) load(items []complaint.Complaint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}
