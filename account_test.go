package contago_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apereira/contago"
)

func newTestAccount(t *testing.T, cfg contago.AccountConfig) *contago.Account {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	cl := contago.NewClient("12345678900", "Ana Souza", time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC), "Rua das Flores 52")
	acct := contago.NewAccount(1, cl, node, cfg)
	cl.AddAccount(acct)
	return acct
}

func entryCount(acct *contago.Account) int {
	var n int
	for range acct.Entries() {
		n++
	}
	return n
}

func TestAccountDeposit(t *testing.T) {
	t.Run("credits balance and records one entry", func(tt *testing.T) {
		as := assert.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		bal, err := acct.Deposit(decimal.NewFromFloat(200.00))
		as.Nil(err)
		as.True(bal.Equal(decimal.NewFromFloat(200.00)))
		as.True(acct.Balance().Equal(decimal.NewFromFloat(200.00)))

		var entries []contago.LedgerEntry
		for e := range acct.Entries() {
			entries = append(entries, e)
		}
		as.Len(entries, 1)
		as.Equal(contago.Deposit, entries[0].Kind)
		as.True(entries[0].Amount.Equal(decimal.NewFromFloat(200.00)))
		as.False(entries[0].Time.IsZero())
	})

	t.Run("rejects non-positive amounts and leaves state alone", func(tt *testing.T) {
		as := assert.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		for _, amount := range []decimal.Decimal{
			decimal.Zero,
			decimal.NewFromFloat(-10.50),
		} {
			_, err := acct.Deposit(amount)
			as.ErrorIs(err, contago.ErrInvalidAmount)
		}
		as.True(acct.Balance().IsZero())
		as.Zero(entryCount(acct))
	})
}

func TestAccountWithdraw(t *testing.T) {
	t.Run("debits balance and records one entry", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(1000))
		reqrd.Nil(err)

		bal, err := acct.Withdraw(decimal.NewFromFloat(250.50))
		as.Nil(err)
		as.True(bal.Equal(decimal.NewFromFloat(749.50)))
		as.Equal(2, entryCount(acct))
	})

	t.Run("rejects non-positive amounts", func(tt *testing.T) {
		as := assert.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Withdraw(decimal.Zero)
		as.ErrorIs(err, contago.ErrInvalidAmount)
		_, err = acct.Withdraw(decimal.NewFromInt(-5))
		as.ErrorIs(err, contago.ErrInvalidAmount)
		as.Zero(entryCount(acct))
	})

	t.Run("rejects amounts above the per-withdrawal limit", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(1000))
		reqrd.Nil(err)

		_, err = acct.Withdraw(decimal.NewFromFloat(600.00))
		as.ErrorIs(err, contago.ErrLimitExceeded)
		as.True(acct.Balance().Equal(decimal.NewFromInt(1000)))
		as.Equal(1, entryCount(acct))
	})

	t.Run("rejects the withdrawal after the count cap", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(1000))
		reqrd.Nil(err)

		for i := 0; i < 3; i++ {
			_, err = acct.Withdraw(decimal.NewFromInt(100))
			reqrd.Nil(err)
		}
		as.True(acct.Balance().Equal(decimal.NewFromInt(700)))

		_, err = acct.Withdraw(decimal.NewFromInt(100))
		as.ErrorIs(err, contago.ErrWithdrawalCountExceeded)
		as.True(acct.Balance().Equal(decimal.NewFromInt(700)))
		as.Equal(4, entryCount(acct))
	})

	t.Run("rejects amounts above the balance", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(200))
		reqrd.Nil(err)

		_, err = acct.Withdraw(decimal.NewFromInt(300))
		as.ErrorIs(err, contago.ErrInsufficientFunds)
		as.True(acct.Balance().Equal(decimal.NewFromInt(200)))
	})

	t.Run("limit check wins over the count cap", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(5000))
		reqrd.Nil(err)
		for i := 0; i < 3; i++ {
			_, err = acct.Withdraw(decimal.NewFromInt(100))
			reqrd.Nil(err)
		}

		// both the limit and the count cap are violated; precedence says limit
		_, err = acct.Withdraw(decimal.NewFromInt(600))
		as.ErrorIs(err, contago.ErrLimitExceeded)
	})

	t.Run("deposits do not count against the withdrawal cap", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		for i := 0; i < 5; i++ {
			_, err := acct.Deposit(decimal.NewFromInt(100))
			reqrd.Nil(err)
		}
		_, err := acct.Withdraw(decimal.NewFromInt(100))
		as.Nil(err)
	})

	t.Run("honors a custom limit configuration", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{
			WithdrawLimit:  decimal.NewFromInt(50),
			MaxWithdrawals: 1,
		})

		_, err := acct.Deposit(decimal.NewFromInt(100))
		reqrd.Nil(err)

		_, err = acct.Withdraw(decimal.NewFromInt(60))
		as.ErrorIs(err, contago.ErrLimitExceeded)
		_, err = acct.Withdraw(decimal.NewFromInt(40))
		as.Nil(err)
		_, err = acct.Withdraw(decimal.NewFromInt(10))
		as.ErrorIs(err, contago.ErrWithdrawalCountExceeded)
	})
}

func TestAccountConcurrentWithdrawals(t *testing.T) {
	as := assert.New(t)
	reqrd := require.New(t)
	acct := newTestAccount(t, contago.AccountConfig{MaxWithdrawals: 100})

	_, err := acct.Deposit(decimal.NewFromInt(300))
	reqrd.Nil(err)

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := acct.Withdraw(decimal.NewFromInt(100)); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// only three withdrawals can fit into the balance; the rest must have
	// failed without touching it
	as.Equal(int64(3), successes.Load())
	as.True(acct.Balance().IsZero())
	as.Equal(4, entryCount(acct))
}

func TestAccountStatement(t *testing.T) {
	t.Run("is idempotent without intervening mutation", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(300))
		reqrd.Nil(err)
		_, err = acct.Withdraw(decimal.NewFromInt(100))
		reqrd.Nil(err)

		first, bal1 := acct.Statement()
		second, bal2 := acct.Statement()
		as.True(bal1.Equal(bal2))

		var a, b []contago.LedgerEntry
		for e := range first {
			a = append(a, e)
		}
		for e := range second {
			b = append(b, e)
		}
		as.Equal(a, b)
	})

	t.Run("sequence is restartable", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(10))
		reqrd.Nil(err)
		_, err = acct.Deposit(decimal.NewFromInt(20))
		reqrd.Nil(err)

		seq := acct.Entries()
		var firstPass, secondPass int
		for range seq {
			firstPass++
		}
		for range seq {
			secondPass++
		}
		as.Equal(2, firstPass)
		as.Equal(2, secondPass)
	})

	t.Run("snapshot ignores later mutations", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		_, err := acct.Deposit(decimal.NewFromInt(10))
		reqrd.Nil(err)

		seq := acct.Entries()
		_, err = acct.Deposit(decimal.NewFromInt(20))
		reqrd.Nil(err)

		var n int
		for range seq {
			n++
		}
		as.Equal(1, n)
		as.Equal(2, entryCount(acct))
	})

	t.Run("entries stay in chronological order", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		acct := newTestAccount(tt, contago.AccountConfig{})

		amounts := []int64{100, 200, 300}
		for _, a := range amounts {
			_, err := acct.Deposit(decimal.NewFromInt(a))
			reqrd.Nil(err)
		}

		var got []int64
		var last contago.LedgerEntry
		for e := range acct.Entries() {
			got = append(got, e.Amount.IntPart())
			as.False(e.Time.Before(last.Time))
			last = e
		}
		as.Equal(amounts, got)
	})
}
