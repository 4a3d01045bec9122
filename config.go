package contago

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		ConnectionString string `yaml:"conn_str"`
	} `yaml:"database"`
	Account struct {
		Branch         string `yaml:"branch"`
		WithdrawLimit  string `yaml:"withdraw_limit"`
		MaxWithdrawals int    `yaml:"max_withdrawals"`
	} `yaml:"account"`
	Limits struct {
		Slots            int64 `yaml:"slots"`
		AcquireTimeoutMS int   `yaml:"acquire_timeout_ms"`
	} `yaml:"limits"`
	NodeID int64 `yaml:"node_id"`
}

// AccountConfig translates the YAML account section into domain limits.
// Absent values fall back to the package defaults.
func (c *Config) AccountConfig() (AccountConfig, error) {
	cfg := AccountConfig{
		Branch:         c.Account.Branch,
		MaxWithdrawals: c.Account.MaxWithdrawals,
	}
	if c.Account.WithdrawLimit != "" {
		lim, err := decimal.NewFromString(c.Account.WithdrawLimit)
		if err != nil {
			return cfg, err
		}
		cfg.WithdrawLimit = lim
	}
	return cfg.withDefaults(), nil
}

func (c *Config) ServiceLimits() *ServiceLimits {
	slots := c.Limits.Slots
	if slots <= 0 {
		slots = 64
	}
	timeout := time.Duration(c.Limits.AcquireTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return NewServiceLimits(slots, timeout)
}
