// internal/infra/memory/store.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"inspector-rotation/internal/domain"
)

type complaintEntry struct {
	complaint domain.Complaint
	seq       uint64 // creation order
}

// Store keeps inspectors, complaints and the rotation cursor in process memory.
// It implements domain.InspectorRepository, domain.ComplaintRepository and
// domain.RotationStore and is used for local runs and tests.
type Store struct {
	mu         sync.RWMutex
	inspectors map[string]domain.Inspector
	complaints map[string]*complaintEntry
	seq        uint64
	cursor     domain.RotationState
	hasCursor  bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		inspectors: make(map[string]domain.Inspector),
		complaints: make(map[string]*complaintEntry),
	}
}

// Inspectors returns the store as a domain.InspectorRepository.
func (s *Store) Inspectors() domain.InspectorRepository { return inspectorRepo{s} }

// Complaints returns the store as a domain.ComplaintRepository.
func (s *Store) Complaints() domain.ComplaintRepository { return complaintRepo{s} }

// Rotation returns the store as a domain.RotationStore.
func (s *Store) Rotation() domain.RotationStore { return rotationStore{s} }

type inspectorRepo struct{ s *Store }

func (r inspectorRepo) Save(_ context.Context, inspector *domain.Inspector) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.inspectors[inspector.ID] = *inspector
	return nil
}

func (r inspectorRepo) Get(_ context.Context, id string) (*domain.Inspector, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inspector, ok := r.s.inspectors[id]
	if !ok {
		return nil, domain.ErrInspectorNotFound
	}
	return &inspector, nil
}

func (r inspectorRepo) List(_ context.Context) ([]*domain.Inspector, error) {
	return r.s.listInspectors(false), nil
}

func (r inspectorRepo) ListActive(_ context.Context) ([]*domain.Inspector, error) {
	return r.s.listInspectors(true), nil
}

func (s *Store) listInspectors(activeOnly bool) []*domain.Inspector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Inspector, 0, len(s.inspectors))
	for _, inspector := range s.inspectors {
		if activeOnly && !inspector.Active {
			continue
		}
		inspector := inspector
		out = append(out, &inspector)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type complaintRepo struct{ s *Store }

func (r complaintRepo) Create(_ context.Context, complaint *domain.Complaint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.complaints[complaint.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrComplaintExists, complaint.ID)
	}
	r.s.seq++
	r.s.complaints[complaint.ID] = &complaintEntry{complaint: *complaint, seq: r.s.seq}
	return nil
}

func (r complaintRepo) Get(_ context.Context, id string) (*domain.Complaint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entry, ok := r.s.complaints[id]
	if !ok {
		return nil, domain.ErrComplaintNotFound
	}
	complaint := entry.complaint
	return &complaint, nil
}

func (r complaintRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.complaints, id)
	return nil
}

func (r complaintRepo) ListRecent(_ context.Context, limit int) ([]*domain.Complaint, error) {
	entries := r.s.sortedComplaints(true)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r complaintRepo) ListUnassigned(_ context.Context) ([]*domain.Complaint, error) {
	var out []*domain.Complaint
	for _, c := range r.s.sortedComplaints(false) {
		if !c.Assigned() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r complaintRepo) SetInspector(_ context.Context, complaintID, inspectorID string, assignedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.complaints[complaintID]
	if !ok {
		return domain.ErrComplaintNotFound
	}
	entry.complaint.InspectorID = inspectorID
	entry.complaint.AssignedAt = assignedAt
	return nil
}

func (s *Store) sortedComplaints(newestFirst bool) []*domain.Complaint {
	s.mu.RLock()
	entries := make([]complaintEntry, 0, len(s.complaints))
	for _, e := range s.complaints {
		entries = append(entries, *e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if newestFirst {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]*domain.Complaint, len(entries))
	for i := range entries {
		out[i] = &entries[i].complaint
	}
	return out
}

type rotationStore struct{ s *Store }

func (r rotationStore) Load(_ context.Context) (domain.RotationState, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.hasCursor {
		return domain.NoPriorAssignment, false, nil
	}
	return r.s.cursor, true, nil
}

func (r rotationStore) Store(_ context.Context, state domain.RotationState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cursor = state
	r.s.hasCursor = true
	return nil
}

func (r rotationStore) Commit(_ context.Context, complaintID, inspectorID string, assignedAt time.Time, next domain.RotationState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.complaints[complaintID]
	if !ok {
		return domain.ErrComplaintNotFound
	}
	entry.complaint.InspectorID = inspectorID
	entry.complaint.AssignedAt = assignedAt
	r.s.cursor = next
	r.s.hasCursor = true
	return nil
}
