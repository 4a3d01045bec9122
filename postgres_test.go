package contago_test

import (
	"context"
	"os"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apereira/contago"
)

var (
	testDBConnStr string
)

func init() {
	testDBConnStr = os.Getenv("TEST_DB_CONN_STR")
}

func TestPostgres(t *testing.T) {
	if testDBConnStr == "" {
		t.Skip("TEST_DB_CONN_STR not set")
	}

	as := assert.New(t)
	reqrd := require.New(t)
	log := zerolog.Nop()

	var cfg contago.Config
	cfg.Database.ConnectionString = testDBConnStr
	lh, err := contago.NewLocalHelper(&cfg)
	reqrd.Nil(err)
	teardown, err := lh.InitDB()
	reqrd.Nil(err)
	t.Cleanup(teardown)

	node, err := snowflake.NewNode(111)
	reqrd.Nil(err)
	endpt, err := contago.NewPostgresEndpoint(testDBConnStr, node, &log)
	reqrd.Nil(err)

	svc, err := contago.NewService(endpt, 1, contago.AccountConfig{}, &log)
	reqrd.Nil(err)

	t.Run("persists a client, account, and charges", func(tt *testing.T) {
		_, err := svc.RegisterClient(contago.RegisterClientReq{
			ID:        "12345678900",
			Name:      "Ana Souza",
			BirthDate: "1990-01-15",
			Address:   "Rua das Flores 52",
		})
		reqrd.Nil(err)

		acct, err := svc.OpenAccount(contago.OpenAccountReq{ClientID: "12345678900"})
		reqrd.Nil(err)

		_, err = svc.Deposit(contago.ChargeReq{ClientID: "12345678900", Amount: decimal.NewFromInt(300)})
		reqrd.Nil(err)
		bal, err := svc.Withdraw(contago.ChargeReq{ClientID: "12345678900", Amount: decimal.NewFromInt(100)})
		reqrd.Nil(err)
		as.True(bal.Equal(decimal.NewFromInt(200)))

		// a fresh endpoint has an empty cache, so this exercises the read path
		endpt2, err := contago.NewPostgresEndpoint(testDBConnStr, node, &log)
		reqrd.Nil(err)
		reloaded, err := endpt2.LoadAccount(acct.Number())
		reqrd.Nil(err)
		as.True(reloaded.Balance().Equal(decimal.NewFromInt(200)))

		var kinds []contago.TransactionKind
		for e := range reloaded.Entries() {
			kinds = append(kinds, e.Kind)
		}
		as.Equal([]contago.TransactionKind{contago.Deposit, contago.Withdrawal}, kinds)

		sums, err := endpt2.Accounts()
		reqrd.Nil(err)
		reqrd.Len(sums, 1)
		as.Equal("Ana Souza", sums[0].Owner)
	})

	t.Run("saving an account twice does not duplicate entries", func(tt *testing.T) {
		acct, err := endpt.LoadAccount(1)
		reqrd.Nil(err)
		before := 0
		for range acct.Entries() {
			before++
		}

		reqrd.Nil(endpt.SaveAccount(acct))

		endpt3, err := contago.NewPostgresEndpoint(testDBConnStr, node, &log)
		reqrd.Nil(err)
		reloaded, err := endpt3.LoadAccount(1)
		reqrd.Nil(err)
		after := 0
		for range reloaded.Entries() {
			after++
		}
		as.Equal(before, after)
	})

	t.Run("a failed load does not poison the client cache", func(tt *testing.T) {
		endpt4, err := contago.NewPostgresEndpoint(testDBConnStr, node, &log)
		reqrd.Nil(err)

		// hide the entries table so loading the client's account fails midway
		_, err = lh.Conn.Exec(context.Background(), "ALTER TABLE entries RENAME TO entries_hidden;")
		reqrd.Nil(err)
		_, err = endpt4.LoadClient("12345678900")
		as.NotNil(err)

		_, err = lh.Conn.Exec(context.Background(), "ALTER TABLE entries_hidden RENAME TO entries;")
		reqrd.Nil(err)

		// the aborted load must not leave an account-less client behind
		cl, err := endpt4.LoadClient("12345678900")
		reqrd.Nil(err)
		as.Len(cl.Accounts(), 1)
	})
}
