package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is a chain-ready transaction payload handed to the wallet-session
// signer. The builder fills To, Data and Value; gas fields are estimated by
// the chain registry before submission.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}
