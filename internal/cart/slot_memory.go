package cart

import (
	"context"
	"sync"
)

// MemSlot keeps slot values in process memory. Values survive store
// re-creation but not a restart.
type MemSlot struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemSlot() *MemSlot {
	return &MemSlot{m: map[string]string{}}
}

func (s *MemSlot) Read(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemSlot) Write(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// MemSlots hands out one MemSlot per shopper.
type MemSlots struct {
	mu    sync.Mutex
	slots map[string]*MemSlot
}

func NewMemSlots() *MemSlots {
	return &MemSlots{slots: map[string]*MemSlot{}}
}

func (m *MemSlots) For(shopperID string) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[shopperID]
	if !ok {
		s = NewMemSlot()
		m.slots[shopperID] = s
	}
	return s
}

// Forget drops the shopper's slot and its cart.
func (m *MemSlots) Forget(shopperID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, shopperID)
}
