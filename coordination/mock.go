package coordination

import (
	"context"
	"sync"
	"time"
)

// MockStore is a configurable mock implementation of Store for use in tests.
// It allows setting up return values, tracking method calls, and injecting
// errors for testing error paths. Without a hook every write succeeds and
// every read finds nothing.
type MockStore struct {
	mu sync.Mutex

	// SetNXFunc is called by SetNX if set.
	SetNXFunc func(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, key string) (string, error)

	// SetFunc is called by Set if set.
	SetFunc func(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndDeleteFunc is called by CompareAndDelete if set.
	CompareAndDeleteFunc func(ctx context.Context, key, expected string) (bool, error)

	// CompareAndExpireFunc is called by CompareAndExpire if set.
	CompareAndExpireFunc func(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)

	// HSetFunc is called by HSet if set.
	HSetFunc func(ctx context.Context, key string, fields map[string]string) error

	// HGetAllFunc is called by HGetAll if set.
	HGetAllFunc func(ctx context.Context, key string) (map[string]string, error)

	// DelFunc is called by Del if set.
	DelFunc func(ctx context.Context, keys ...string) error

	// Call tracking
	SetNXCalls            []SetCall
	GetCalls              []string
	SetCalls              []SetCall
	CompareAndDeleteCalls []CompareCall
	CompareAndExpireCalls []CompareCall
	HSetCalls             []HSetCall
	HGetAllCalls          []string
	DelCalls              [][]string
}

var _ Store = (*MockStore)(nil)

// SetCall records a SetNX or Set call.
type SetCall struct {
	Key   string
	Value string
	TTL   time.Duration
}

// CompareCall records a CompareAndDelete or CompareAndExpire call.
type CompareCall struct {
	Key      string
	Expected string
	TTL      time.Duration
}

// HSetCall records an HSet call.
type HSetCall struct {
	Key    string
	Fields map[string]string
}

// NewMockStore creates a new mock coordination store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SetNX implements Store.
func (m *MockStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.SetNXCalls = append(m.SetNXCalls, SetCall{Key: key, Value: value, TTL: ttl})
	m.mu.Unlock()

	if m.SetNXFunc != nil {
		return m.SetNXFunc(ctx, key, value, ttl)
	}
	return true, nil
}

// Get implements Store.
func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, key)
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", ErrKeyNotFound
}

// Set implements Store.
func (m *MockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Value: value, TTL: ttl})
	m.mu.Unlock()

	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

// CompareAndDelete implements Store.
func (m *MockStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	m.CompareAndDeleteCalls = append(m.CompareAndDeleteCalls, CompareCall{Key: key, Expected: expected})
	m.mu.Unlock()

	if m.CompareAndDeleteFunc != nil {
		return m.CompareAndDeleteFunc(ctx, key, expected)
	}
	return true, nil
}

// CompareAndExpire implements Store.
func (m *MockStore) CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.CompareAndExpireCalls = append(m.CompareAndExpireCalls, CompareCall{Key: key, Expected: expected, TTL: ttl})
	m.mu.Unlock()

	if m.CompareAndExpireFunc != nil {
		return m.CompareAndExpireFunc(ctx, key, expected, ttl)
	}
	return true, nil
}

// HSet implements Store.
func (m *MockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	m.mu.Lock()
	m.HSetCalls = append(m.HSetCalls, HSetCall{Key: key, Fields: copied})
	m.mu.Unlock()

	if m.HSetFunc != nil {
		return m.HSetFunc(ctx, key, fields)
	}
	return nil
}

// HGetAll implements Store.
func (m *MockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	m.HGetAllCalls = append(m.HGetAllCalls, key)
	m.mu.Unlock()

	if m.HGetAllFunc != nil {
		return m.HGetAllFunc(ctx, key)
	}
	return map[string]string{}, nil
}

// Del implements Store.
func (m *MockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	m.DelCalls = append(m.DelCalls, append([]string(nil), keys...))
	m.mu.Unlock()

	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}

// Reset clears all call tracking.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetNXCalls = nil
	m.GetCalls = nil
	m.SetCalls = nil
	m.CompareAndDeleteCalls = nil
	m.CompareAndExpireCalls = nil
	m.HSetCalls = nil
	m.HGetAllCalls = nil
	m.DelCalls = nil
}
