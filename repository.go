package contago

// Repository loads and saves whole entities. The service never sees row
// formats or SQL; an endpoint hands back fully materialized clients and
// accounts and persists them as a unit.
type Repository interface {
	// LoadClient returns the client registered under id, or ErrClientNotFound.
	LoadClient(id string) (*Client, error)
	SaveClient(c *Client) error
	// LoadAccount returns the account with the given number, or ErrAccountNotFound.
	LoadAccount(number uint64) (*Account, error)
	SaveAccount(a *Account) error
	// NextAccountNumber hands out the next number in the system-wide
	// monotonic sequence.
	NextAccountNumber() (uint64, error)
	// Accounts lists every account in the system in account-number order.
	Accounts() ([]AccountSummary, error)
}
