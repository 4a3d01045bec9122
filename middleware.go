package contago

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

type Middleware func(Service) Service

//
// Request validation
//

// validationMiddleware rejects requests that are malformed before they reach
// the core: missing identifiers, blank names. Business rules (amount sign,
// limits, counts) stay in the Account; this layer only guards the envelope.
type validationMiddleware struct {
	next Service
}

var (
	_ Service = (*validationMiddleware)(nil)
)

func NewValidationMiddleware() Middleware {
	return func(svc Service) Service {
		return &validationMiddleware{next: svc}
	}
}

func (v *validationMiddleware) RegisterClient(req RegisterClientReq) (*Client, error) {
	fields := map[string]string{}
	if req.ID == "" {
		fields["id"] = "missing"
	}
	if req.Name == "" {
		fields["name"] = "missing"
	}
	if req.BirthDate == "" {
		fields["birth_date"] = "missing"
	}
	if len(fields) > 0 {
		return nil, ErrBadRequest{Fields: fields}
	}
	return v.next.RegisterClient(req)
}

func (v *validationMiddleware) OpenAccount(req OpenAccountReq) (*Account, error) {
	if req.ClientID == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"clientID": "missing"}}
	}
	return v.next.OpenAccount(req)
}

func (v *validationMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	if req.ClientID == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"clientID": "missing"}}
	}
	return v.next.Deposit(req)
}

func (v *validationMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	if req.ClientID == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"clientID": "missing"}}
	}
	return v.next.Withdraw(req)
}

func (v *validationMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	if req.ClientID == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"clientID": "missing"}}
	}
	return v.next.Balance(req)
}

func (v *validationMiddleware) Statement(w io.Writer, req StatementReq) error {
	if req.ClientID == "" {
		return ErrBadRequest{Fields: map[string]string{"clientID": "missing"}}
	}
	if req.Format != "" && req.Format != "pdf" && req.Format != "text" {
		return ErrBadRequest{Fields: map[string]string{"format": "expected pdf or text"}}
	}
	return v.next.Statement(w, req)
}

func (v *validationMiddleware) ListAccounts() (iter.Seq[AccountSummary], error) {
	return v.next.ListAccounts()
}

//
// Instrumentation
//

type instrumentingMiddleware struct {
	next     Service
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	_ Service = (*instrumentingMiddleware)(nil)
)

func NewInstrumentingMiddleware(reg prometheus.Registerer) Middleware {
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "contago_requests_total",
		Help: "Ledger service requests by operation and outcome.",
	}, []string{"op", "outcome"})
	duration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contago_request_duration_seconds",
		Help:    "Ledger service request latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	return func(next Service) Service {
		return &instrumentingMiddleware{
			next:     next,
			requests: requests,
			duration: duration,
		}
	}
}

func (i *instrumentingMiddleware) observe(op string, begin time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.requests.WithLabelValues(op, outcome).Inc()
	i.duration.WithLabelValues(op).Observe(time.Since(begin).Seconds())
}

func (i *instrumentingMiddleware) RegisterClient(req RegisterClientReq) (c *Client, err error) {
	defer func(begin time.Time) { i.observe("register_client", begin, err) }(time.Now())
	return i.next.RegisterClient(req)
}

func (i *instrumentingMiddleware) OpenAccount(req OpenAccountReq) (a *Account, err error) {
	defer func(begin time.Time) { i.observe("open_account", begin, err) }(time.Now())
	return i.next.OpenAccount(req)
}

func (i *instrumentingMiddleware) Deposit(req ChargeReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { i.observe("deposit", begin, err) }(time.Now())
	return i.next.Deposit(req)
}

func (i *instrumentingMiddleware) Withdraw(req ChargeReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { i.observe("withdraw", begin, err) }(time.Now())
	return i.next.Withdraw(req)
}

func (i *instrumentingMiddleware) Balance(req BalanceReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { i.observe("balance", begin, err) }(time.Now())
	return i.next.Balance(req)
}

func (i *instrumentingMiddleware) Statement(w io.Writer, req StatementReq) (err error) {
	defer func(begin time.Time) { i.observe("statement", begin, err) }(time.Now())
	return i.next.Statement(w, req)
}

func (i *instrumentingMiddleware) ListAccounts() (seq iter.Seq[AccountSummary], err error) {
	defer func(begin time.Time) { i.observe("list_accounts", begin, err) }(time.Now())
	return i.next.ListAccounts()
}

//
// Rate limiting middlewares
//

// limitMiddleware sheds load by bounding in-flight requests per operation
// with a weighted semaphore. A caller that cannot acquire a slot within the
// timeout gets ErrOverCapacity instead of queueing unboundedly.
type limitMiddleware struct {
	next   Service
	limits *ServiceLimits
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	AcquireTimeout time.Duration
	RegisterClient *semaphore.Weighted
	OpenAccount    *semaphore.Weighted
	Deposit        *semaphore.Weighted
	Withdraw       *semaphore.Weighted
	Balance        *semaphore.Weighted
	Statement      *semaphore.Weighted
	ListAccounts   *semaphore.Weighted
}

// NewServiceLimits grants every operation the same number of in-flight slots.
func NewServiceLimits(slots int64, timeout time.Duration) *ServiceLimits {
	return &ServiceLimits{
		AcquireTimeout: timeout,
		RegisterClient: semaphore.NewWeighted(slots),
		OpenAccount:    semaphore.NewWeighted(slots),
		Deposit:        semaphore.NewWeighted(slots),
		Withdraw:       semaphore.NewWeighted(slots),
		Balance:        semaphore.NewWeighted(slots),
		Statement:      semaphore.NewWeighted(slots),
		ListAccounts:   semaphore.NewWeighted(slots),
	}
}

func NewLimitMiddleware(limits *ServiceLimits) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:   next,
			limits: limits,
		}
	}
}

func (l *limitMiddleware) acquire(sem *semaphore.Weighted) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.limits.AcquireTimeout)
	defer cancel()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrOverCapacity
	}
	return func() { sem.Release(1) }, nil
}

func (l *limitMiddleware) RegisterClient(req RegisterClientReq) (*Client, error) {
	release, err := l.acquire(l.limits.RegisterClient)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.RegisterClient(req)
}

func (l *limitMiddleware) OpenAccount(req OpenAccountReq) (*Account, error) {
	release, err := l.acquire(l.limits.OpenAccount)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.OpenAccount(req)
}

func (l *limitMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Deposit)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Deposit(req)
}

func (l *limitMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Withdraw)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Withdraw(req)
}

func (l *limitMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	release, err := l.acquire(l.limits.Balance)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Balance(req)
}

func (l *limitMiddleware) Statement(w io.Writer, req StatementReq) error {
	release, err := l.acquire(l.limits.Statement)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Statement(w, req)
}

func (l *limitMiddleware) ListAccounts() (iter.Seq[AccountSummary], error) {
	release, err := l.acquire(l.limits.ListAccounts)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.ListAccounts()
}

type ServiceBreaker struct {
	RegisterClient *gobreaker.TwoStepCircuitBreaker[*Client]
	OpenAccount    *gobreaker.TwoStepCircuitBreaker[*Account]
	Deposit        *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Withdraw       *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Balance        *gobreaker.TwoStepCircuitBreaker[*decimal.Decimal]
	Statement      *gobreaker.TwoStepCircuitBreaker[interface{}]
	ListAccounts   *gobreaker.TwoStepCircuitBreaker[interface{}]
}

func NewServiceBreaker() *ServiceBreaker {
	return &ServiceBreaker{
		RegisterClient: gobreaker.NewTwoStepCircuitBreaker[*Client](gobreaker.Settings{Name: "register_client"}),
		OpenAccount:    gobreaker.NewTwoStepCircuitBreaker[*Account](gobreaker.Settings{Name: "open_account"}),
		Deposit:        gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](gobreaker.Settings{Name: "deposit"}),
		Withdraw:       gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](gobreaker.Settings{Name: "withdraw"}),
		Balance:        gobreaker.NewTwoStepCircuitBreaker[*decimal.Decimal](gobreaker.Settings{Name: "balance"}),
		Statement:      gobreaker.NewTwoStepCircuitBreaker[interface{}](gobreaker.Settings{Name: "statement"}),
		ListAccounts:   gobreaker.NewTwoStepCircuitBreaker[interface{}](gobreaker.Settings{Name: "list_accounts"}),
	}
}

// circuitBreakMiddleware trips when downstream infrastructure keeps failing.
// Domain rejections (invalid amount, limits, not found) count as successes;
// only infrastructure errors feed the breaker.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

// breakerSuccess reports whether the outcome should count as a healthy call.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	for _, kind := range []error{
		ErrInvalidAmount,
		ErrLimitExceeded,
		ErrWithdrawalCountExceeded,
		ErrInsufficientFunds,
		ErrClientNotFound,
		ErrAccountNotFound,
		ErrDuplicateClient,
		ErrNoAccounts,
		ErrAccountIndexOutOfRange,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	errbr := &ErrBadRequest{}
	return errors.As(err, errbr)
}

func (c *circuitBreakMiddleware) RegisterClient(req RegisterClientReq) (*Client, error) {
	done, err := c.brkrs.RegisterClient.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	cl, err := c.next.RegisterClient(req)
	done(breakerSuccess(err))
	return cl, err
}

func (c *circuitBreakMiddleware) OpenAccount(req OpenAccountReq) (*Account, error) {
	done, err := c.brkrs.OpenAccount.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	acct, err := c.next.OpenAccount(req)
	done(breakerSuccess(err))
	return acct, err
}

func (c *circuitBreakMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Deposit.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	bal, err := c.next.Deposit(req)
	done(breakerSuccess(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Withdraw.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	bal, err := c.next.Withdraw(req)
	done(breakerSuccess(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Balance(req BalanceReq) (*decimal.Decimal, error) {
	done, err := c.brkrs.Balance.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	bal, err := c.next.Balance(req)
	done(breakerSuccess(err))
	return bal, err
}

func (c *circuitBreakMiddleware) Statement(w io.Writer, req StatementReq) error {
	done, err := c.brkrs.Statement.Allow()
	if err != nil {
		return ErrOverCapacity
	}
	err = c.next.Statement(w, req)
	done(breakerSuccess(err))
	return err
}

func (c *circuitBreakMiddleware) ListAccounts() (iter.Seq[AccountSummary], error) {
	done, err := c.brkrs.ListAccounts.Allow()
	if err != nil {
		return nil, ErrOverCapacity
	}
	seq, err := c.next.ListAccounts()
	done(breakerSuccess(err))
	return seq, err
}
