package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// Store is the till's local durable key-value storage. Values are opaque
// serialized strings.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys. Owner-scoped data appends "/<owner id>".
const (
	KeyProducts            = "pos_products"
	KeyTransactions        = "pos_transactions"
	KeyServices            = "service_sales_services"
	KeyServiceTransactions = "service_sales_transactions"
	KeySyncQueue           = "sync_queue"
	KeySession             = "auth_session"
)

func OwnerKey(base string, ownerID string) string {
	return base + "/" + ownerID
}

func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(payload))
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.values[key]
	return val, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
