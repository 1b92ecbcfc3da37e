package txbuilder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"leverscope/internal/model"
	"leverscope/internal/pools"
)

// ErrInvalidParams marks builder parameters the caller can correct.
var ErrInvalidParams = errors.New("invalid builder params")

const erc20ApproveABIJSON = `[
  {"inputs": [{"type": "address"}, {"type": "uint256"}], "name": "approve", "outputs": [{"type": "bool"}], "stateMutability": "nonpayable", "type": "function"}
]`

// Credit facade surface for leveraged opens: an account is opened with a
// sequenced multicall of collateral, debt and quota changes.
const creditFacadeABIJSON = `[
  {"inputs": [
    {"name": "onBehalfOf", "type": "address"},
    {"name": "calls", "type": "tuple[]", "components": [
      {"name": "target", "type": "address"},
      {"name": "callData", "type": "bytes"}
    ]},
    {"name": "referralCode", "type": "uint256"}
  ], "name": "openCreditAccount", "outputs": [{"type": "address"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "token", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "addCollateral", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "amount", "type": "uint256"}], "name": "increaseDebt", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "token", "type": "address"}, {"name": "quotaChange", "type": "int96"}, {"name": "minQuota", "type": "uint96"}], "name": "updateQuota", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	erc20ApproveABI     abi.ABI
	erc20ApproveABIOnce sync.Once
	erc20ApproveABIErr  error

	creditFacadeABI     abi.ABI
	creditFacadeABIOnce sync.Once
	creditFacadeABIErr  error
)

func approveABI() (abi.ABI, error) {
	erc20ApproveABIOnce.Do(func() {
		erc20ApproveABI, erc20ApproveABIErr = abi.JSON(strings.NewReader(erc20ApproveABIJSON))
	})
	return erc20ApproveABI, erc20ApproveABIErr
}

// CreditFacadeABI returns the parsed credit facade ABI.
func CreditFacadeABI() (abi.ABI, error) {
	creditFacadeABIOnce.Do(func() {
		creditFacadeABI, creditFacadeABIErr = abi.JSON(strings.NewReader(creditFacadeABIJSON))
	})
	return creditFacadeABI, creditFacadeABIErr
}

// multiCall mirrors the facade's (target, callData) tuple.
type multiCall struct {
	Target   common.Address
	CallData []byte
}

// Approve encodes an ERC-20 approval of amount for spender.
func Approve(token, spender common.Address, amount *big.Int) (model.TxRequest, error) {
	if amount == nil || amount.Sign() <= 0 {
		return model.TxRequest{}, fmt.Errorf("%w: approval amount must be positive", ErrInvalidParams)
	}
	parsed, err := approveABI()
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("parse approve abi: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("pack approve: %w", err)
	}
	return model.TxRequest{To: token, Data: data, Value: new(big.Int)}, nil
}

// Deposit encodes a vault deposit of assets crediting receiver with shares.
func Deposit(pool common.Address, assets *big.Int, receiver common.Address) (model.TxRequest, error) {
	if assets == nil || assets.Sign() <= 0 {
		return model.TxRequest{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParams)
	}
	vault, err := pools.VaultABI()
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("parse vault abi: %w", err)
	}
	data, err := vault.Pack("deposit", assets, receiver)
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("pack deposit: %w", err)
	}
	return model.TxRequest{To: pool, Data: data, Value: new(big.Int)}, nil
}

// Withdraw encodes a vault redemption of shares, paying assets to receiver.
func Withdraw(pool common.Address, shares *big.Int, receiver, owner common.Address) (model.TxRequest, error) {
	if shares == nil || shares.Sign() <= 0 {
		return model.TxRequest{}, fmt.Errorf("%w: share amount must be positive", ErrInvalidParams)
	}
	vault, err := pools.VaultABI()
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("parse vault abi: %w", err)
	}
	data, err := vault.Pack("redeem", shares, receiver, owner)
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("pack redeem: %w", err)
	}
	return model.TxRequest{To: pool, Data: data, Value: new(big.Int)}, nil
}

// OpenPositionParams describe a leveraged open through the credit facade.
type OpenPositionParams struct {
	CreditFacade    common.Address
	Token           common.Address
	DepositAmount   *big.Int
	LeveragePercent int64
	OnBehalfOf      common.Address
	MinQuota        *big.Int
}

// BorrowAmount returns the debt to take for a deposit at the given leverage:
// totalPosition - deposit, where totalPosition = deposit * leveragePercent/100.
func BorrowAmount(deposit *big.Int, leveragePercent int64) *big.Int {
	if deposit == nil || leveragePercent <= 100 {
		return new(big.Int)
	}
	total := new(big.Int).Mul(deposit, big.NewInt(leveragePercent))
	total.Div(total, big.NewInt(100))
	return total.Sub(total, deposit)
}

// OpenLeveraged encodes an openCreditAccount call wrapping the sequenced
// add-collateral, increase-debt and enable-quota multicall. The debt call is
// emitted only when the computed borrow amount is positive.
func OpenLeveraged(p OpenPositionParams) (model.TxRequest, error) {
	if p.DepositAmount == nil || p.DepositAmount.Sign() <= 0 {
		return model.TxRequest{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidParams)
	}
	if p.LeveragePercent < 100 {
		return model.TxRequest{}, fmt.Errorf("%w: leverage percent %d below 100", ErrInvalidParams, p.LeveragePercent)
	}

	facade, err := CreditFacadeABI()
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("parse credit facade abi: %w", err)
	}

	addCollateral, err := facade.Pack("addCollateral", p.Token, p.DepositAmount)
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("pack addCollateral: %w", err)
	}
	calls := []multiCall{{Target: p.CreditFacade, CallData: addCollateral}}

	borrow := BorrowAmount(p.DepositAmount, p.LeveragePercent)
	if borrow.Sign() > 0 {
		increaseDebt, err := facade.Pack("increaseDebt", borrow)
		if err != nil {
			return model.TxRequest{}, fmt.Errorf("pack increaseDebt: %w", err)
		}
		calls = append(calls, multiCall{Target: p.CreditFacade, CallData: increaseDebt})

		minQuota := p.MinQuota
		if minQuota == nil {
			minQuota = new(big.Int)
		}
		total := new(big.Int).Add(p.DepositAmount, borrow)
		updateQuota, err := facade.Pack("updateQuota", p.Token, total, minQuota)
		if err != nil {
			return model.TxRequest{}, fmt.Errorf("pack updateQuota: %w", err)
		}
		calls = append(calls, multiCall{Target: p.CreditFacade, CallData: updateQuota})
	}

	data, err := facade.Pack("openCreditAccount", p.OnBehalfOf, calls, new(big.Int))
	if err != nil {
		return model.TxRequest{}, fmt.Errorf("pack openCreditAccount: %w", err)
	}
	return model.TxRequest{To: p.CreditFacade, Data: data, Value: new(big.Int)}, nil
}
