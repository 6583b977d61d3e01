package store

import (
	"context"
	"sync"

	"cardshield/fraud-api/internal/domain"
)

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu sync.RWMutex

	capacity int
	// history is oldest first; appends go to the end.
	history []domain.ScoredTransaction
	byID    map[string]int // ID → index into history

	total int
	fraud int
}

// NewMemory creates an empty store retaining at most capacity transactions.
// A non-positive capacity uses DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		capacity: capacity,
		history:  make([]domain.ScoredTransaction, 0, capacity),
		byID:     make(map[string]int, capacity),
	}
}

// Record implements Store.
func (m *Memory) Record(_ context.Context, st *domain.ScoredTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, *st)
	if len(m.history) > m.capacity {
		drop := len(m.history) - m.capacity
		m.history = append(m.history[:0:0], m.history[drop:]...)
		m.reindex()
	} else {
		m.byID[st.Transaction.ID] = len(m.history) - 1
	}

	m.total++
	if st.Analysis.IsFraud {
		m.fraud++
	}
	return nil
}

// reindex rebuilds the ID index. Must be called with the write lock held.
func (m *Memory) reindex() {
	m.byID = make(map[string]int, len(m.history))
	for i := range m.history {
		m.byID[m.history[i].Transaction.ID] = i
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (*domain.ScoredTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	st := m.history[i]
	return &st, nil
}

// Recent implements Store.
func (m *Memory) Recent(_ context.Context, n int) ([]domain.ScoredTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestFirst(n), nil
}

// Alerts implements Store.
func (m *Memory) Alerts(_ context.Context, n int) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return alertsFrom(m.newestFirst(len(m.history)), n), nil
}

// newestFirst copies up to n entries in reverse order.
// Must be called with at least a read-lock held.
func (m *Memory) newestFirst(n int) []domain.ScoredTransaction {
	if n > len(m.history) {
		n = len(m.history)
	}
	if n < 0 {
		n = 0
	}
	out := make([]domain.ScoredTransaction, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out
}

// Statistics implements Store.
func (m *Memory) Statistics(_ context.Context) (domain.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.NewStatistics(m.total, m.fraud), nil
}

// Reset implements Store.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = m.history[:0]
	m.byID = make(map[string]int, m.capacity)
	m.total, m.fraud = 0, 0
	return nil
}
