package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/model"
)

// Caller is the chain surface needed for contract reads.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// DecimalsMode selects how token precision is resolved.
type DecimalsMode int

const (
	// DecimalsFromToken reads decimals() from the token contract.
	DecimalsFromToken DecimalsMode = iota
	// DecimalsFixed18 assumes 18 decimals for every token.
	DecimalsFixed18
)

// ParseDecimalsMode maps a config value to a DecimalsMode.
func ParseDecimalsMode(value string) (DecimalsMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "token":
		return DecimalsFromToken, nil
	case "fixed18":
		return DecimalsFixed18, nil
	default:
		return DecimalsFromToken, fmt.Errorf("unsupported decimals mode: %s", value)
	}
}

// ReaderOptions tunes a Reader.
type ReaderOptions struct {
	DecimalsMode DecimalsMode
	Logger       *zap.Logger
}

// Reader performs aggregate contract reads. Results are never cached except token decimals.
type Reader struct {
	caller   Caller
	mode     DecimalsMode
	decimals *DecimalsCache
	logger   *zap.Logger
}

func NewReader(caller Caller, opts ReaderOptions) *Reader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		caller:   caller,
		mode:     opts.DecimalsMode,
		decimals: NewDecimalsCache(),
		logger:   logger,
	}
}

// ReadPoolState reads the pool counters concurrently and normalizes amounts by the token precision.
// Any failing read fails the whole call with *apperr.ReadFailedError.
func (r *Reader) ReadPoolState(ctx context.Context, pool common.Address) (model.PoolState, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var (
		remaining, claimAmount, claimCount, claimedTotal *big.Int
		token                                            common.Address
	)
	group, groupCtx := errgroup.WithContext(ctx)
	readUint := func(method string, dst **big.Int) {
		group.Go(func() error {
			value, err := r.callUint(groupCtx, pool, parsed, method)
			if err != nil {
				return err
			}
			*dst = value
			return nil
		})
	}
	readUint("remaining", &remaining)
	readUint("claimAmount", &claimAmount)
	readUint("claimCount", &claimCount)
	readUint("claimedTotal", &claimedTotal)
	group.Go(func() error {
		addr, err := r.PoolToken(groupCtx, pool)
		token = addr
		return err
	})
	if err := group.Wait(); err != nil {
		return model.PoolState{}, err
	}

	decimals, err := r.TokenDecimals(ctx, token)
	if err != nil {
		return model.PoolState{}, err
	}
	if !claimCount.IsUint64() {
		return model.PoolState{}, r.readErr(pool, "claimCount", fmt.Errorf("value overflows uint64: %s", claimCount))
	}

	return model.PoolState{
		Remaining:    ToDecimal(remaining, decimals),
		ClaimAmount:  ToDecimal(claimAmount, decimals),
		ClaimCount:   claimCount.Uint64(),
		ClaimedTotal: ToDecimal(claimedTotal, decimals),
		TokenAddress: token.Hex(),
		Decimals:     decimals,
	}, nil
}

// ReadTokenMeta binds the token to its capability and reads that call set concurrently.
func (r *Reader) ReadTokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	bound, err := r.BindToken(ctx, token)
	if err != nil {
		return model.TokenMeta{}, err
	}

	var (
		meta   = model.TokenMeta{Address: token.Hex(), Capability: model.CapabilityMinimal}
		supply *big.Int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	readString := func(fn func(context.Context) (string, error), dst *string) {
		group.Go(func() error {
			value, err := fn(groupCtx)
			if err != nil {
				return err
			}
			*dst = value
			return nil
		})
	}
	readString(bound.Name, &meta.Name)
	readString(bound.Symbol, &meta.Symbol)
	group.Go(func() error {
		value, err := bound.Decimals(groupCtx)
		if err != nil {
			return err
		}
		meta.Decimals = value
		return nil
	})
	group.Go(func() error {
		value, err := bound.TotalSupply(groupCtx)
		if err != nil {
			return err
		}
		supply = value
		return nil
	})
	if named, ok := bound.(NamedToken); ok {
		meta.Capability = model.CapabilityNamed
		readString(named.Author, &meta.Author)
		readString(named.Description, &meta.Description)
		readString(named.LogoURI, &meta.LogoURI)
	}
	if err := group.Wait(); err != nil {
		return model.TokenMeta{}, err
	}

	meta.TotalSupply = ToDecimal(supply, meta.Decimals)
	return meta, nil
}

// TokenDecimals returns the precision used to scale token amounts, memoized per token.
func (r *Reader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if r.mode == DecimalsFixed18 {
		return DefaultDecimals, nil
	}
	if decimals, ok := r.decimals.Get(token); ok {
		return decimals, nil
	}

	parsed, err := TokenABI()
	if err != nil {
		return 0, fmt.Errorf("parse token abi: %w", err)
	}
	values, err := r.call(ctx, token, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return 0, r.readErr(token, "decimals", err)
	}
	r.decimals.Set(token, decimals)
	return decimals, nil
}

// PoolToken reads the address of the token a pool pays out.
func (r *Reader) PoolToken(ctx context.Context, pool common.Address) (common.Address, error) {
	parsed, err := PoolABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := r.call(ctx, pool, parsed, "token")
	if err != nil {
		return common.Address{}, err
	}
	token, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, r.readErr(pool, "token", err)
	}
	return token, nil
}

// PoolDecimals resolves the precision of the token a pool pays out.
func (r *Reader) PoolDecimals(ctx context.Context, pool common.Address) (uint8, error) {
	if r.mode == DecimalsFixed18 {
		return DefaultDecimals, nil
	}
	token, err := r.PoolToken(ctx, pool)
	if err != nil {
		return 0, err
	}
	return r.TokenDecimals(ctx, token)
}

// TotalSupply reads the token supply scaled by its precision.
func (r *Reader) TotalSupply(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	parsed, err := TokenABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token abi: %w", err)
	}

	var (
		supply   *big.Int
		decimals uint8
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		value, err := r.callUint(groupCtx, token, parsed, "totalSupply")
		supply = value
		return err
	})
	group.Go(func() error {
		value, err := r.TokenDecimals(groupCtx, token)
		decimals = value
		return err
	})
	if err := group.Wait(); err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(supply, decimals), nil
}

func (r *Reader) callUint(ctx context.Context, target common.Address, parsed abi.ABI, method string) (*big.Int, error) {
	values, err := r.call(ctx, target, parsed, method)
	if err != nil {
		return nil, err
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return nil, r.readErr(target, method, err)
	}
	return value, nil
}

func (r *Reader) call(ctx context.Context, target common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, r.readErr(target, method, fmt.Errorf("pack: %w", err))
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, r.readErr(target, method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, r.readErr(target, method, fmt.Errorf("unpack: %w", err))
	}
	if len(values) == 0 {
		return nil, r.readErr(target, method, fmt.Errorf("empty result"))
	}
	return values, nil
}

func (r *Reader) readErr(target common.Address, method string, err error) error {
	r.logger.Debug("contract read failed",
		zap.String("address", target.Hex()),
		zap.String("method", method),
		zap.Error(err),
	)
	return &apperr.ReadFailedError{Address: target.Hex(), Method: method, Err: err}
}
