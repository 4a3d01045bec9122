package contago

import (
	"sort"
	"sync"
)

// MemoryEndpoint keeps the whole ledger in process memory. Entities are
// shared by pointer, so a saved account is the same value the service
// mutated; Save calls only index it.
type MemoryEndpoint struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	accounts   map[uint64]*Account
	nextNumber uint64
}

var (
	_ Repository = (*MemoryEndpoint)(nil)
)

func NewMemoryEndpoint() *MemoryEndpoint {
	return &MemoryEndpoint{
		clients:  make(map[string]*Client),
		accounts: make(map[uint64]*Account),
	}
}

func (m *MemoryEndpoint) LoadClient(id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (m *MemoryEndpoint) SaveClient(c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

func (m *MemoryEndpoint) LoadAccount(number uint64) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (m *MemoryEndpoint) SaveAccount(a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Number()] = a
	return nil
}

func (m *MemoryEndpoint) NextAccountNumber() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNumber++
	return m.nextNumber, nil
}

func (m *MemoryEndpoint) Accounts() ([]AccountSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make([]AccountSummary, 0, len(m.accounts))
	for _, a := range m.accounts {
		sums = append(sums, AccountSummary{
			Branch: a.Branch(),
			Number: a.Number(),
			Owner:  a.Owner().Name,
		})
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].Number < sums[j].Number })
	return sums, nil
}
