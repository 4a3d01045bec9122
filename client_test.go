package contago_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apereira/contago"
)

func TestClientSelectAccount(t *testing.T) {
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	birth := time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fails when the client has no accounts", func(tt *testing.T) {
		as := assert.New(tt)
		cl := contago.NewClient("111", "Bruno Lima", birth, "Av. Central 10")
		_, err := cl.SelectAccount(0)
		as.ErrorIs(err, contago.ErrNoAccounts)
	})

	t.Run("a single account resolves regardless of index", func(tt *testing.T) {
		as := assert.New(tt)
		cl := contago.NewClient("222", "Carla Dias", birth, "Av. Central 11")
		only := contago.NewAccount(1, cl, node, contago.AccountConfig{})
		cl.AddAccount(only)

		for _, idx := range []int{0, 1, 7, -1} {
			acct, err := cl.SelectAccount(idx)
			as.Nil(err)
			as.Same(only, acct)
		}
	})

	t.Run("multiple accounts select by position", func(tt *testing.T) {
		as := assert.New(tt)
		cl := contago.NewClient("333", "Davi Rocha", birth, "Av. Central 12")
		first := contago.NewAccount(1, cl, node, contago.AccountConfig{})
		second := contago.NewAccount(2, cl, node, contago.AccountConfig{})
		cl.AddAccount(first)
		cl.AddAccount(second)

		acct, err := cl.SelectAccount(1)
		as.Nil(err)
		as.Same(second, acct)

		_, err = cl.SelectAccount(2)
		as.ErrorIs(err, contago.ErrAccountIndexOutOfRange)
		_, err = cl.SelectAccount(-1)
		as.ErrorIs(err, contago.ErrAccountIndexOutOfRange)
	})

	t.Run("accounts keep opening order", func(tt *testing.T) {
		as := assert.New(tt)
		cl := contago.NewClient("444", "Elisa Prado", birth, "Av. Central 13")
		for i := uint64(1); i <= 3; i++ {
			cl.AddAccount(contago.NewAccount(i, cl, node, contago.AccountConfig{}))
		}
		accts := cl.Accounts()
		as.Len(accts, 3)
		for i, a := range accts {
			as.Equal(uint64(i+1), a.Number())
		}
	})
}
