package ledger

import (
	"context"
	"sort"
	"sync"

	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/models"
)

// memStore is an in-memory Store that hands out deep copies and enforces the
// version check the same way the gorm store does.
type memStore struct {
	mu       sync.RWMutex
	projects map[uint]models.Project
	ledgers  map[string]*models.EMILedger
	order    []string
	nextID   uint
	failSave error
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[uint]models.Project),
		ledgers:  make(map[string]*models.EMILedger),
	}
}

func cloneLedger(l *models.EMILedger) *models.EMILedger {
	cp := *l
	cp.Installments = make([]models.Installment, len(l.Installments))
	for i, inst := range l.Installments {
		instCopy := inst
		instCopy.Payments = append([]models.Payment{}, inst.Payments...)
		if inst.ReceivedDate != nil {
			d := *inst.ReceivedDate
			instCopy.ReceivedDate = &d
		}
		cp.Installments[i] = instCopy
	}
	return &cp
}

func (m *memStore) addProject(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

func (m *memStore) GetProject(_ context.Context, id uint) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memStore) CreateLedger(_ context.Context, l *models.EMILedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range l.Installments {
		m.nextID++
		l.Installments[i].ID = m.nextID
	}
	m.ledgers[l.ID] = cloneLedger(l)
	m.order = append(m.order, l.ID)
	return nil
}

func (m *memStore) GetLedger(_ context.Context, id string) (*models.EMILedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.ledgers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLedger(l), nil
}

func (m *memStore) GetLedgerByTaskID(_ context.Context, taskID string) (*models.EMILedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if l := m.ledgers[id]; l.TaskID == taskID {
			return cloneLedger(l), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListLedgers(_ context.Context) ([]models.EMILedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EMILedger, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *cloneLedger(m.ledgers[m.order[i]]))
	}
	return out, nil
}

func (m *memStore) SaveLedger(_ context.Context, l *models.EMILedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	stored, ok := m.ledgers[l.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != l.Version {
		return ErrVersionConflict
	}
	for i := range l.Installments {
		for j := range l.Installments[i].Payments {
			if l.Installments[i].Payments[j].ID == 0 {
				m.nextID++
				l.Installments[i].Payments[j].ID = m.nextID
			}
		}
	}
	l.Version++
	m.ledgers[l.ID] = cloneLedger(l)
	return nil
}

// staleStore hands out copies one version behind, so every save conflicts.
type staleStore struct {
	*memStore
}

func (s staleStore) GetLedger(ctx context.Context, id string) (*models.EMILedger, error) {
	l, err := s.memStore.GetLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Version--
	return l, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.LogOptions
}

func (f *fakeAudit) WriteLog(_ context.Context, opts audit.LogOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, opts)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, string(e.Action))
	}
	sort.Strings(out)
	return out
}
