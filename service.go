package contago

import (
	"errors"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const birthDateLayout = "2006-01-02"

type RegisterClientReq struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Address   string `json:"address"`
}

type OpenAccountReq struct {
	ClientID string
}

type ChargeReq struct {
	Amount       decimal.Decimal `json:"amount"`
	AccountIndex int             `json:"account_index"`
	ClientID     string
}

type BalanceReq struct {
	ClientID     string
	AccountIndex int
}

type StatementReq struct {
	ClientID     string
	AccountIndex int
	// Format selects the rendering, "pdf" (default) or "text".
	Format string
}

type AccountSummary struct {
	Branch string `json:"branch"`
	Number uint64 `json:"number"`
	Owner  string `json:"owner"`
}

type Service interface {
	RegisterClient(RegisterClientReq) (*Client, error)
	OpenAccount(OpenAccountReq) (*Account, error)
	Deposit(ChargeReq) (*decimal.Decimal, error)
	Withdraw(ChargeReq) (*decimal.Decimal, error)
	Balance(BalanceReq) (*decimal.Decimal, error)
	Statement(io.Writer, StatementReq) error
	ListAccounts() (iter.Seq[AccountSummary], error)
}

func NewService(repo Repository, nodeID int64, acctCfg AccountConfig, log *zerolog.Logger) (*serviceImpl, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &serviceImpl{
		repo:    repo,
		node:    node,
		acctCfg: acctCfg.withDefaults(),
		log:     log,
	}, nil
}

type serviceImpl struct {
	repo    Repository
	node    *snowflake.Node
	acctCfg AccountConfig
	log     *zerolog.Logger

	// serializes the uniqueness check + store in RegisterClient and the
	// number assignment + store in OpenAccount
	mu sync.Mutex
}

func (s *serviceImpl) RegisterClient(req RegisterClientReq) (*Client, error) {
	bd, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		return nil, ErrBadRequest{Fields: map[string]string{"birth_date": "expected YYYY-MM-DD"}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.repo.LoadClient(req.ID); err == nil {
		return nil, ErrDuplicateClient
	} else if !errors.Is(err, ErrClientNotFound) {
		return nil, err
	}

	c := NewClient(req.ID, req.Name, bd, req.Address)
	if err := s.repo.SaveClient(c); err != nil {
		return nil, err
	}
	s.log.Info().Str("client_id", c.ID).Msg("client registered")
	return c, nil
}

func (s *serviceImpl) OpenAccount(req OpenAccountReq) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, err := s.repo.LoadClient(req.ClientID)
	if err != nil {
		return nil, err
	}
	num, err := s.repo.NextAccountNumber()
	if err != nil {
		return nil, err
	}

	acct := NewAccount(num, cl, s.node, s.acctCfg)
	cl.AddAccount(acct)
	if err := s.repo.SaveAccount(acct); err != nil {
		return nil, err
	}
	if err := s.repo.SaveClient(cl); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("client_id", cl.ID).
		Uint64("account", acct.Number()).
		Msg("account opened")
	return acct, nil
}

func (s *serviceImpl) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	acct, err := s.resolveAccount(req.ClientID, req.AccountIndex)
	if err != nil {
		return nil, err
	}
	bal, entry, err := acct.deposit(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveAccount(acct); err != nil {
		// the charge did not reach the repository; undo it so a retry does
		// not double-credit
		acct.revert(entry)
		s.log.Err(err).Uint64("account", acct.Number()).Msg("deposit not persisted, reverted")
		return nil, err
	}
	return &bal, nil
}

func (s *serviceImpl) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	acct, err := s.resolveAccount(req.ClientID, req.AccountIndex)
	if err != nil {
		return nil, err
	}
	bal, entry, err := acct.withdraw(req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveAccount(acct); err != nil {
		acct.revert(entry)
		s.log.Err(err).Uint64("account", acct.Number()).Msg("withdrawal not persisted, reverted")
		return nil, err
	}
	return &bal, nil
}

func (s *serviceImpl) Balance(req BalanceReq) (*decimal.Decimal, error) {
	acct, err := s.resolveAccount(req.ClientID, req.AccountIndex)
	if err != nil {
		return nil, err
	}
	bal := acct.Balance()
	return &bal, nil
}

func (s *serviceImpl) Statement(w io.Writer, req StatementReq) error {
	acct, err := s.resolveAccount(req.ClientID, req.AccountIndex)
	if err != nil {
		return err
	}
	entries, bal := acct.Statement()
	if req.Format == "text" {
		return writeStatementText(w, acct, entries, bal)
	}
	return writeStatementPDF(w, acct, entries, bal)
}

func (s *serviceImpl) ListAccounts() (iter.Seq[AccountSummary], error) {
	sums, err := s.repo.Accounts()
	if err != nil {
		return nil, err
	}
	return func(yield func(AccountSummary) bool) {
		for _, sm := range sums {
			if !yield(sm) {
				return
			}
		}
	}, nil
}

func (s *serviceImpl) resolveAccount(clientID string, index int) (*Account, error) {
	cl, err := s.repo.LoadClient(clientID)
	if err != nil {
		return nil, err
	}
	return cl.SelectAccount(index)
}
