package queue

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[int64]*Item
	nextID int64
	now    func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]*Item), now: time.Now}
}

// SetClock replaces the time source used for readiness.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Enqueue(_ context.Context, eventType string, payload []byte) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.now()
	it := &Item{
		ID:        m.nextID,
		EventType: eventType,
		Payload:   slices.Clone(payload),
		NotBefore: now,
		CreatedAt: now,
	}
	m.items[it.ID] = it
	return *it, nil
}

func (m *MemoryStore) ItemsReadyToExecute(_ context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		if it.Ready(now) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *MemoryStore) IsItemStillQueued(_ context.Context, item Item) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[item.ID]
	return ok && !it.Completed && it.RetryCount == item.RetryCount, nil
}

func (m *MemoryStore) Complete(_ context.Context, item Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[item.ID]
	if !ok || it.Completed {
		return 0, nil
	}
	it.Completed = true
	return 1, nil
}

func (m *MemoryStore) IncreaseRetryCounter(_ context.Context, item Item, notBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[item.ID]
	if !ok || it.Completed || it.RetryCount != item.RetryCount {
		return 0, nil
	}
	it.RetryCount++
	it.NotBefore = notBefore
	return 1, nil
}

// Get returns a copy of the item with id.
func (m *MemoryStore) Get(id int64) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}
