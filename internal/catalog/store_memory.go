package catalog

import (
	"context"
	"sort"
	"sync"
)

const cdn = "https://rocketseat-cdn.s3-sa-east-1.amazonaws.com/modulo-redux/"

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]Product
	stocks map[int64]int
}

func NewMemStore() *MemStore {
	s := &MemStore{m: map[int64]Product{}, stocks: map[int64]int{}}

	seed := []struct {
		p      Product
		amount int
	}{
		{Product{ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: cdn + "tenis1.jpg"}, 3},
		{Product{ID: 2, Title: "Tênis VR Caminhada Confortável Detalhes Couro Masculino", Price: 139.9, Image: cdn + "tenis2.jpg"}, 5},
		{Product{ID: 3, Title: "Tênis Adidas Duramo Lite 2.0", Price: 219.9, Image: cdn + "tenis3.jpg"}, 2},
		{Product{ID: 4, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: cdn + "tenis1.jpg"}, 1},
		{Product{ID: 5, Title: "Tênis VR Caminhada Confortável Detalhes Couro Masculino", Price: 139.9, Image: cdn + "tenis2.jpg"}, 5},
		{Product{ID: 6, Title: "Tênis Adidas Duramo Lite 2.0", Price: 219.9, Image: cdn + "tenis3.jpg"}, 10},
	}
	for _, e := range seed {
		s.m[e.p.ID] = e.p
		s.stocks[e.p.ID] = e.amount
	}
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) ListSortedByID(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return p, ok, nil
}

func (s *MemStore) Stock(ctx context.Context, id int64) (Stock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.stocks[id]
	if !ok {
		return Stock{}, false, nil
	}
	return Stock{ID: id, Amount: n}, true, nil
}

func (s *MemStore) ListStock(ctx context.Context) ([]Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stock, 0, len(s.stocks))
	for id, n := range s.stocks {
		out = append(out, Stock{ID: id, Amount: n})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetStock overrides the purchasable amount of a product.
func (s *MemStore) SetStock(id int64, amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[id] = amount
}

// Put adds or replaces a product without touching its stock.
func (s *MemStore) Put(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.ID] = p
}
