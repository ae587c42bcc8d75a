// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/droneregistry/extension-oauth/storage"
)

// MockClientRegistry is a mock implementation of ClientRegistry for testing
type MockClientRegistry struct {
	mu            sync.RWMutex
	clients       map[string]*storage.Client
	GetClientFunc func(ctx context.Context, clientID string) (*storage.Client, error)
	CallCounts    map[string]int
}

// NewMockClientRegistry creates a registry holding clients. GetClientFunc
// defaults to a map lookup.
func NewMockClientRegistry(clients ...storage.Client) *MockClientRegistry {
	m := &MockClientRegistry{
		clients:    make(map[string]*storage.Client, len(clients)),
		CallCounts: make(map[string]int),
	}
	for i := range clients {
		c := clients[i]
		m.clients[c.ClientID] = &c
	}

	m.GetClientFunc = func(_ context.Context, clientID string) (*storage.Client, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		c, ok := m.clients[clientID]
		if !ok {
			return nil, storage.ErrClientNotFound
		}
		return c, nil
	}

	return m
}

// GetClient implements storage.ClientRegistry
func (m *MockClientRegistry) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.mu.Lock()
	m.CallCounts["GetClient"]++
	m.mu.Unlock()
	return m.GetClientFunc(ctx, clientID)
}

// MockCodeStore is a mock implementation of CodeStore for testing. The
// default hooks keep codes in a map and delete them on redemption.
type MockCodeStore struct {
	mu         sync.RWMutex
	codes      map[string]*storage.AuthorizationCode
	SaveFunc   func(ctx context.Context, code *storage.AuthorizationCode) error
	RedeemFunc func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	CallCounts map[string]int
}

// NewMockCodeStore creates a new mock code store
func NewMockCodeStore() *MockCodeStore {
	m := &MockCodeStore{
		codes:      make(map[string]*storage.AuthorizationCode),
		CallCounts: make(map[string]int),
	}

	m.SaveFunc = func(_ context.Context, code *storage.AuthorizationCode) error {
		if err := code.Validate(); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.codes[code.Code] = code.Clone()
		return nil
	}

	m.RedeemFunc = func(_ context.Context, code string) (*storage.AuthorizationCode, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored, ok := m.codes[code]
		if !ok {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		delete(m.codes, code)
		return stored, nil
	}

	return m
}

// SaveAuthorizationCode implements storage.CodeStore
func (m *MockCodeStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.mu.Lock()
	m.CallCounts["SaveAuthorizationCode"]++
	m.mu.Unlock()
	return m.SaveFunc(ctx, code)
}

// RedeemAuthorizationCode implements storage.CodeStore
func (m *MockCodeStore) RedeemAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.mu.Lock()
	m.CallCounts["RedeemAuthorizationCode"]++
	m.mu.Unlock()
	return m.RedeemFunc(ctx, code)
}

// Calls returns how often method was invoked.
func (m *MockCodeStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// Len returns the number of unredeemed codes.
func (m *MockCodeStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codes)
}

// Reset clears all stored data and call counts
func (m *MockCodeStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = make(map[string]*storage.AuthorizationCode)
	m.CallCounts = make(map[string]int)
}

var (
	_ storage.ClientRegistry = (*MockClientRegistry)(nil)
	_ storage.CodeStore      = (*MockCodeStore)(nil)
)
