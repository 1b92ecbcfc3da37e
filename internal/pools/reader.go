package pools

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ContractCaller is the read surface the registry needs from a chain client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolState holds the raw on-chain views of one lending vault.
type PoolState struct {
	Underlying         common.Address
	Name               string
	ExpectedLiquidity  *big.Int
	AvailableLiquidity *big.Int
	SupplyRate         *big.Int
	BaseInterestRate   *big.Int
}

// TokenMeta captures ERC-20 metadata for a pool's underlying token.
type TokenMeta struct {
	Address  string
	Decimals uint8
	Symbol   string
	Name     string
}

// ListRegisteredPools queries the market registry contract for the chain's
// pool addresses.
func ListRegisteredPools(ctx context.Context, caller ContractCaller, registry common.Address) ([]common.Address, error) {
	registryABI, err := MarketRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	values, err := callMethod(ctx, caller, registry, registryABI, "getPools")
	if err != nil {
		return nil, err
	}
	addresses, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unsupported getPools result type %T", values[0])
	}
	return addresses, nil
}

// FetchPoolState loads the vault's liquidity and rate views.
func FetchPoolState(ctx context.Context, caller ContractCaller, pool common.Address) (PoolState, error) {
	vault, err := VaultABI()
	if err != nil {
		return PoolState{}, fmt.Errorf("parse vault abi: %w", err)
	}

	state := PoolState{}

	values, err := callMethod(ctx, caller, pool, vault, "asset")
	if err != nil {
		return PoolState{}, err
	}
	state.Underlying, err = asAddress(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("asset: %w", err)
	}

	if values, err := callMethod(ctx, caller, pool, vault, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			state.Name = name
		}
	}

	values, err = callMethod(ctx, caller, pool, vault, "expectedLiquidity")
	if err != nil {
		return PoolState{}, err
	}
	state.ExpectedLiquidity, err = asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("expectedLiquidity: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, vault, "availableLiquidity")
	if err != nil {
		return PoolState{}, err
	}
	state.AvailableLiquidity, err = asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("availableLiquidity: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, vault, "supplyRate")
	if err != nil {
		return PoolState{}, err
	}
	state.SupplyRate, err = asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("supplyRate: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, vault, "baseInterestRate")
	if err != nil {
		return PoolState{}, err
	}
	state.BaseInterestRate, err = asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("baseInterestRate: %w", err)
	}

	return state, nil
}

// FetchTokenMeta loads token metadata via ERC-20 calls, trying the bytes32
// variants for symbol and name when the string calls fail.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (TokenMeta, error) {
	meta := TokenMeta{Address: token.Hex()}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// FetchAllowance returns the ERC-20 allowance granted by owner to spender.
func FetchAllowance(ctx context.Context, caller ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethodArgs(ctx, caller, token, stringABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// FetchBalance returns the ERC-20 balance of an account.
func FetchBalance(ctx context.Context, caller ContractCaller, token, account common.Address) (*big.Int, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethodArgs(ctx, caller, token, stringABI, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PreviewDeposit returns the shares the vault would mint for the given assets.
func PreviewDeposit(ctx context.Context, caller ContractCaller, pool common.Address, assets *big.Int) (*big.Int, error) {
	vault, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	values, err := callMethodArgs(ctx, caller, pool, vault, "previewDeposit", assets)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PreviewRedeem returns the assets the vault would return for the given shares.
func PreviewRedeem(ctx context.Context, caller ContractCaller, pool common.Address, shares *big.Int) (*big.Int, error) {
	vault, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	values, err := callMethodArgs(ctx, caller, pool, vault, "previewRedeem", shares)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	return callMethodArgs(ctx, caller, to, parsed, method)
}

func callMethodArgs(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
