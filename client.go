package contago

import (
	"sync"
	"time"
)

// Client is the aggregation root for a person's accounts. The ID is a
// national identity number and is unique system-wide. A Client is only ever
// mutated by appending a newly opened account.
type Client struct {
	ID        string
	Name      string
	BirthDate time.Time
	Address   string

	mu       sync.RWMutex
	accounts []*Account
}

func NewClient(id, name string, birthDate time.Time, address string) *Client {
	return &Client{
		ID:        id,
		Name:      name,
		BirthDate: birthDate,
		Address:   address,
	}
}

func (c *Client) AddAccount(a *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, a)
}

// SelectAccount returns the account at the given position. A client with
// exactly one account resolves any index to that account; this mirrors how
// callers that never ask for an index still reach the only account there is.
func (c *Client) SelectAccount(index int) (*Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case len(c.accounts) == 0:
		return nil, ErrNoAccounts
	case len(c.accounts) == 1:
		return c.accounts[0], nil
	case index < 0 || index >= len(c.accounts):
		return nil, ErrAccountIndexOutOfRange
	}
	return c.accounts[index], nil
}

// Accounts returns a copy of the client's account list in opening order.
func (c *Client) Accounts() []*Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Account, len(c.accounts))
	copy(out, c.accounts)
	return out
}
