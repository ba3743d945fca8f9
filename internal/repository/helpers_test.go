package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type memStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	fail  bool
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}}
}

func (m *memStore) Load(ctx context.Context, name string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *memStore) Save(ctx context.Context, name string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.docs[name] = data
	m.saves++
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
