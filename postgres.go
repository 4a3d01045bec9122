package contago

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	pgSelectClientSQL = `
		SELECT name, birth_date, address
		FROM clients
		WHERE id = $1;
	`

	pgUpsertClientSQL = `
		INSERT INTO clients (id, name, birth_date, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    birth_date = EXCLUDED.birth_date,
		    address = EXCLUDED.address;
	`

	pgSelectClientAccountsSQL = `
		SELECT number
		FROM accounts
		WHERE client_id = $1
		ORDER BY number;
	`

	pgSelectAccountSQL = `
		SELECT branch, client_id, balance, withdraw_limit, max_withdrawals
		FROM accounts
		WHERE number = $1;
	`

	pgUpsertAccountSQL = `
		INSERT INTO accounts (number, branch, client_id, balance, withdraw_limit, max_withdrawals)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (number) DO UPDATE
		SET balance = EXCLUDED.balance;
	`

	pgSelectEntriesSQL = `
		SELECT id, kind, amount, created_at
		FROM entries
		WHERE account_number = $1
		ORDER BY id;
	`

	pgInsertEntrySQL = `
		INSERT INTO entries (id, account_number, kind, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING;
	`

	pgNextAccountNumberSQL = `
		SELECT nextval('account_numbers');
	`

	pgSelectSummariesSQL = `
		SELECT a.branch, a.number, c.name
		FROM accounts a
		JOIN clients c ON c.id = a.client_id
		ORDER BY a.number;
	`
)

// PostgresEndpoint persists the ledger in Postgres. Loaded entities are kept
// in a write-through cache so concurrent requests share one Account value and
// its mutex; history entries carry snowflake IDs, which makes re-inserting an
// already stored entry a no-op.
type PostgresEndpoint struct {
	pool *pgxpool.Pool
	node *snowflake.Node
	log  *zerolog.Logger

	mu       sync.Mutex
	clients  map[string]*Client
	accounts map[uint64]*Account
}

var (
	_ Repository = (*PostgresEndpoint)(nil)
)

func NewPostgresEndpoint(connStr string, node *snowflake.Node, log *zerolog.Logger) (*PostgresEndpoint, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	endpt := &PostgresEndpoint{
		pool:     pool,
		node:     node,
		log:      log,
		clients:  make(map[string]*Client),
		accounts: make(map[uint64]*Account),
	}
	return endpt, nil
}

func (pg *PostgresEndpoint) LoadClient(id string) (*Client, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.loadClient(context.Background(), id)
}

func (pg *PostgresEndpoint) loadClient(ctx context.Context, id string) (*Client, error) {
	if c, ok := pg.clients[id]; ok {
		return c, nil
	}

	row := pg.pool.QueryRow(ctx, pgSelectClientSQL, id)
	var (
		name    string
		bd      time.Time
		address string
	)
	if err := row.Scan(&name, &bd, &address); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	cl := NewClient(id, name, bd, address)
	// cached before account loading so the back-references below resolve to
	// this same value; removed again on failure so a partial client is never
	// served from the cache
	pg.clients[id] = cl

	rows, err := pg.pool.Query(ctx, pgSelectClientAccountsSQL, id)
	if err != nil {
		delete(pg.clients, id)
		return nil, err
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[uint64])
	if err != nil {
		delete(pg.clients, id)
		return nil, err
	}
	for _, num := range numbers {
		acct, err := pg.loadAccount(ctx, num)
		if err != nil {
			delete(pg.clients, id)
			return nil, err
		}
		cl.AddAccount(acct)
	}
	return cl, nil
}

func (pg *PostgresEndpoint) LoadAccount(number uint64) (*Account, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.loadAccount(context.Background(), number)
}

func (pg *PostgresEndpoint) loadAccount(ctx context.Context, number uint64) (*Account, error) {
	if a, ok := pg.accounts[number]; ok {
		return a, nil
	}

	row := pg.pool.QueryRow(ctx, pgSelectAccountSQL, number)
	var (
		branch   string
		clientID string
		balance  decimal.Decimal
		limit    decimal.Decimal
		maxw     int
	)
	if err := row.Scan(&branch, &clientID, &balance, &limit, &maxw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	owner, ok := pg.clients[clientID]
	if !ok {
		// loading the owner attaches all of its accounts, this one included
		if _, err := pg.loadClient(ctx, clientID); err != nil {
			return nil, err
		}
		if a, ok := pg.accounts[number]; ok {
			return a, nil
		}
		owner = pg.clients[clientID]
	}

	rows, err := pg.pool.Query(ctx, pgSelectEntriesSQL, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var (
			eid  int64
			kind string
			e    LedgerEntry
		)
		if err := rows.Scan(&eid, &kind, &e.Amount, &e.Time); err != nil {
			return nil, err
		}
		e.ID = snowflake.ID(eid)
		e.Kind = TransactionKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	acct := &Account{
		number: number,
		branch: branch,
		owner:  owner,
		cfg: AccountConfig{
			Branch:         branch,
			WithdrawLimit:  limit,
			MaxWithdrawals: maxw,
		},
		node:    pg.node,
		balance: balance,
		hist:    History{entries: entries},
	}
	pg.accounts[number] = acct
	return acct, nil
}

func (pg *PostgresEndpoint) SaveClient(c *Client) error {
	ctx := context.Background()
	if _, err := pg.pool.Exec(ctx, pgUpsertClientSQL, c.ID, c.Name, c.BirthDate, c.Address); err != nil {
		return err
	}

	pg.mu.Lock()
	pg.clients[c.ID] = c
	pg.mu.Unlock()
	return nil
}

func (pg *PostgresEndpoint) SaveAccount(a *Account) error {
	ctx := context.Background()
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	entries, bal := a.Statement()
	if _, err = tx.Exec(ctx, pgUpsertAccountSQL,
		a.Number(), a.Branch(), a.Owner().ID, bal, a.cfg.WithdrawLimit, a.cfg.MaxWithdrawals,
	); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	var queued int
	for e := range entries {
		batch.Queue(pgInsertEntrySQL, e.ID.Int64(), a.Number(), string(e.Kind), e.Amount, e.Time)
		queued++
	}
	if queued > 0 {
		btresults := tx.SendBatch(ctx, batch)
		for i := 0; i < queued; i++ {
			if _, err = btresults.Exec(); err != nil {
				btresults.Close()
				return err
			}
		}
		if err = btresults.Close(); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	pg.mu.Lock()
	pg.accounts[a.Number()] = a
	pg.mu.Unlock()
	return nil
}

func (pg *PostgresEndpoint) NextAccountNumber() (uint64, error) {
	row := pg.pool.QueryRow(context.Background(), pgNextAccountNumberSQL)
	var num uint64
	if err := row.Scan(&num); err != nil {
		return 0, err
	}
	return num, nil
}

func (pg *PostgresEndpoint) Accounts() ([]AccountSummary, error) {
	rows, err := pg.pool.Query(context.Background(), pgSelectSummariesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []AccountSummary
	for rows.Next() {
		var sm AccountSummary
		if err := rows.Scan(&sm.Branch, &sm.Number, &sm.Owner); err != nil {
			return nil, err
		}
		sums = append(sums, sm)
	}
	return sums, rows.Err()
}
