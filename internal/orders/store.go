package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the append-only order record owned by the saga. Rows are created
// once as PLACED; UpdateStatus only applies transitions allowed by CanTransition.
type Store interface {
	Create(ctx context.Context, o Order) (Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context) ([]Order, error)
}

// MemoryStore is a thread-safe Store backed by a map.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]Order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]Order), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, o Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	if o.OrderDate.IsZero() {
		o.OrderDate = s.now().UTC()
	}
	o.UpdatedAt = o.OrderDate
	s.data[o.ID] = o
	return o, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%w: id=%d", ErrOrderNotFound, id)
	}
	if o.Status != from {
		return fmt.Errorf("%w: order %d is %s, not %s", ErrInvalidTransition, id, o.Status, from)
	}
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	s.data[id] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: id=%d", ErrOrderNotFound, id)
	}
	return o, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.data))
	for _, o := range s.data {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
