package store

import (
	"context"
	"sync"
	"time"

	"contractlens/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	contracts map[string]domain.Contract
	order     []string // contract insertion order
	comments  map[string][]domain.Comment
	analyses  map[string][]domain.Analysis
	seq       int64
	lastStamp time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		contracts: make(map[string]domain.Contract),
		comments:  make(map[string][]domain.Comment),
		analyses:  make(map[string][]domain.Analysis),
	}
}

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UserCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) SaveContract(_ context.Context, c domain.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.contracts[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	m.contracts[c.ID] = c
	return nil
}

func (m *MemoryStore) SetContractStatus(_ context.Context, id string, status domain.ContractStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil
	}
	c.Status = status
	c.ErrorMessage = errMsg
	c.UpdatedAt = time.Now().UTC()
	m.contracts[id] = c
	return nil
}

func (m *MemoryStore) SetContractText(_ context.Context, id string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok || c.Text != "" {
		return nil
	}
	c.Text = text
	c.TextLen = len([]rune(text))
	c.Status = domain.StatusReady
	c.ErrorMessage = ""
	c.UpdatedAt = time.Now().UTC()
	m.contracts[id] = c
	return nil
}

func (m *MemoryStore) ListContracts(_ context.Context) ([]domain.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contract, 0, len(m.order))
	for _, id := range m.order {
		if c, ok := m.contracts[id]; ok {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListContractsByOwner(_ context.Context, ownerID string) ([]domain.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contract, 0, len(m.order))
	for _, id := range m.order {
		if c, ok := m.contracts[id]; ok && c.OwnerID == ownerID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) GetContract(_ context.Context, id string) (domain.Contract, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	return c, ok, nil
}

func (m *MemoryStore) DeleteContract(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contracts, id)
	delete(m.comments, id)
	delete(m.analyses, id)
	for i, cid := range m.order {
		if cid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// AppendComment assigns a monotonic timestamp and insertion sequence. The
// timestamp never goes backwards even if the wall clock does.
func (m *MemoryStore) AppendComment(_ context.Context, c domain.Comment) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(m.lastStamp) {
		now = m.lastStamp
	}
	m.lastStamp = now
	m.seq++
	c.Seq = m.seq
	c.CreatedAt = now
	if c.Highlight != nil {
		h := *c.Highlight
		c.Highlight = &h
	}
	m.comments[c.ContractID] = append(m.comments[c.ContractID], c)
	return c, nil
}

func (m *MemoryStore) ListComments(_ context.Context, contractID string) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.comments[contractID]
	res := make([]domain.Comment, len(src))
	copy(res, src)
	return res, nil
}

func (m *MemoryStore) SaveAnalysis(_ context.Context, a domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[a.ContractID] = append([]domain.Analysis{a}, m.analyses[a.ContractID]...)
	return nil
}

func (m *MemoryStore) ListAnalyses(_ context.Context, contractID string) ([]domain.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.analyses[contractID]
	res := make([]domain.Analysis, len(src))
	copy(res, src)
	return res, nil
}
