package complaints

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with an in-process map. Used by tests and as
// a fallback when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	complaints map[string]*Complaint
	notes      map[string][]*Note
}

// NewMemoryStore creates an empty in-memory complaint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		complaints: make(map[string]*Complaint),
		notes:      make(map[string][]*Note),
	}
}

// Create inserts a new complaint.
func (s *MemoryStore) Create(_ context.Context, c *Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.complaints[c.ID] = &cp
	return nil
}

// GetByID returns the complaint with the given ID.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// List returns complaints matching the filter, newest first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Complaint
	for _, c := range s.complaints {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		if f.CitizenID != "" && c.CitizenID != f.CitizenID {
			continue
		}
		if f.AssigneeID != "" && c.AssigneeID != f.AssigneeID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := listLimit(f.Limit)
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update rewrites a complaint's mutable fields.
func (s *MemoryStore) Update(_ context.Context, c *Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.complaints[c.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = c.Status
	existing.Priority = c.Priority
	existing.AssigneeID = c.AssigneeID
	existing.UpdatedAt = c.UpdatedAt
	return nil
}

// AddNote attaches a note to a complaint.
func (s *MemoryStore) AddNote(_ context.Context, n *Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notes[n.ComplaintID] = append(s.notes[n.ComplaintID], &cp)
	return nil
}

// ListNotes returns a complaint's notes, oldest first.
func (s *MemoryStore) ListNotes(_ context.Context, complaintID string, includeInternal bool) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Note
	for _, n := range s.notes[complaintID] {
		if n.Internal && !includeInternal {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}
