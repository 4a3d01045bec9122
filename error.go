package contago

import (
	"errors"
	"fmt"
)

// Domain outcomes. Every ledger operation resolves to success or exactly one
// of these kinds; callers branch with errors.Is and render their own messages.
var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrLimitExceeded           = errors.New("amount exceeds withdrawal limit")
	ErrWithdrawalCountExceeded = errors.New("withdrawal count exceeded")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrClientNotFound          = errors.New("client not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrDuplicateClient         = errors.New("client id already registered")
	ErrNoAccounts              = errors.New("client has no accounts")
	ErrAccountIndexOutOfRange  = errors.New("account index out of range")
)

var (
	ErrInternalServer = errors.New("internal server error")
	ErrOverCapacity   = errors.New("service over capacity")
)

type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}
