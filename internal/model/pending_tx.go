package model

import "time"

// TxType labels what a submitted transaction does.
type TxType string

const (
	TxApproval TxType = "approval"
	TxDeposit  TxType = "deposit"
	TxWithdraw TxType = "withdraw"
)

// TxStatus is the lifecycle state of a submitted transaction. A transaction
// moves pending -> confirmed or pending -> failed exactly once.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// PendingTransaction records a submitted transaction, keyed by TxHash. The
// row is written before the confirmation wait starts so a crash mid-wait does
// not lose the record.
type PendingTransaction struct {
	TxHash       string     `json:"tx_hash"`
	AttemptID    string     `json:"attempt_id"`
	UserID       string     `json:"user_id"`
	TxType       TxType     `json:"tx_type"`
	ChainID      uint64     `json:"chain_id"`
	PoolAddress  string     `json:"pool_address"`
	TokenAddress string     `json:"token_address,omitempty"`
	Amount       string     `json:"amount"`
	Status       TxStatus   `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}
