package consultation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps consultations in process memory. It enforces the same
// version and live-session rules as the PostgreSQL repository and is used when
// no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Consultation
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[uuid.UUID]*Consultation),
		now:     time.Now,
	}
}

func (m *MemoryRepository) Create(_ context.Context, c *Consultation) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[c.ID]; ok {
		return nil, conflict("create", c.ID, "id already exists")
	}
	if c.Status.Live() && m.liveLocked(c.PatientID, c.DoctorID) != nil {
		return nil, conflict("create", c.ID, "a live consultation already exists for this patient and doctor")
	}

	out := c.Clone()
	now := m.now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	out.Version = 1
	m.records[out.ID] = out
	return out.Clone(), nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.records[id]
	if !ok {
		return nil, notFound("get", id)
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, id uuid.UUID, patch Patch) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[id]
	if !ok {
		return nil, notFound("update", id)
	}
	if cur.Version != patch.ExpectedVersion {
		return nil, conflict("update", id, fmt.Sprintf("version %d is stale", patch.ExpectedVersion))
	}

	next := cur.Clone()
	patch.apply(next)
	if next.Status.Live() && !cur.Status.Live() {
		if other := m.liveLocked(next.PatientID, next.DoctorID); other != nil && other.ID != id {
			return nil, conflict("update", id, "a live consultation already exists for this patient and doctor")
		}
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = m.now().UTC()
	m.records[id] = next
	return next.Clone(), nil
}

func (m *MemoryRepository) FindActiveOrDraft(_ context.Context, patientID, doctorID uuid.UUID) (*Consultation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.liveLocked(patientID, doctorID)
	if c == nil {
		return nil, &Error{Kind: KindNotFound, Op: "find_live", Message: "no live consultation for patient and doctor"}
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	return m.list(func(c *Consultation) bool { return c.PatientID == patientID }), nil
}

func (m *MemoryRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Consultation, error) {
	return m.list(func(c *Consultation) bool { return c.DoctorID == doctorID }), nil
}

func (m *MemoryRepository) list(match func(*Consultation) bool) []*Consultation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Consultation
	for _, c := range m.records {
		if match(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryRepository) liveLocked(patientID, doctorID uuid.UUID) *Consultation {
	var newest *Consultation
	for _, c := range m.records {
		if c.PatientID != patientID || c.DoctorID != doctorID || !c.Status.Live() {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return newest
}
