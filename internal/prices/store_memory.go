package prices

import (
	"context"
	"sort"
	"sync"
)

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]PricedItem
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[int64]PricedItem{}}
}

func (s *MemStore) InitSchema(ctx context.Context) error { return nil }
func (s *MemStore) Ping(ctx context.Context) error       { return nil }
func (s *MemStore) Close() error                         { return nil }

func (s *MemStore) ListAll(ctx context.Context) ([]PricedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

func (s *MemStore) ListPage(ctx context.Context, offset, limit int) ([]PricedItem, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sorted()
	if offset >= len(all) {
		return []PricedItem{}, nil
	}
	end := len(all)
	if limit < end-offset {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (PricedItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.m[id]
	return it, ok, nil
}

func (s *MemStore) Insert(ctx context.Context, name string, price int64) (PricedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	it := PricedItem{ID: s.nextID, Name: name, Price: price}
	s.m[it.ID] = it
	return it, nil
}

func (s *MemStore) Exists(ctx context.Context, name string, price int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.m {
		if it.Name == name && it.Price == price {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) Update(ctx context.Context, id int64, name string, price int64) (PricedItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.m[id]
	if !ok {
		return PricedItem{}, false, nil
	}
	it.Name, it.Price = name, price
	s.m[id] = it
	return it, true, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}

// sorted must be called with s.mu held.
func (s *MemStore) sorted() []PricedItem {
	out := make([]PricedItem, 0, len(s.m))
	for _, it := range s.m {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
