package contract

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MinimalToken is the ERC20 read surface every token exposes.
type MinimalToken interface {
	Address() common.Address
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// NamedToken is a token that also publishes descriptive metadata.
type NamedToken interface {
	MinimalToken
	Author(ctx context.Context) (string, error)
	Description(ctx context.Context) (string, error)
	LogoURI(ctx context.Context) (string, error)
}

var namedSelectors = []string{"author", "description", "logoURI"}

// BindToken inspects deployed bytecode and returns a NamedToken when all
// metadata getters are dispatched by the contract, otherwise a MinimalToken.
func (r *Reader) BindToken(ctx context.Context, token common.Address) (MinimalToken, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	code, err := r.caller.CodeAt(ctx, token, nil)
	if err != nil {
		return nil, r.readErr(token, "code", err)
	}
	if len(code) == 0 {
		return nil, r.readErr(token, "code", fmt.Errorf("no contract deployed"))
	}

	base := &tokenBinding{reader: r, address: token, abi: parsed}
	if hasSelectors(code, parsed, namedSelectors) {
		return &namedTokenBinding{tokenBinding: base}, nil
	}
	return base, nil
}

func hasSelectors(code []byte, parsed abi.ABI, methods []string) bool {
	for _, name := range methods {
		method, ok := parsed.Methods[name]
		if !ok || !bytes.Contains(code, method.ID) {
			return false
		}
	}
	return true
}

type tokenBinding struct {
	reader  *Reader
	address common.Address
	abi     abi.ABI
}

func (t *tokenBinding) Address() common.Address { return t.address }

func (t *tokenBinding) Name(ctx context.Context) (string, error) {
	return t.callString(ctx, "name")
}

func (t *tokenBinding) Symbol(ctx context.Context) (string, error) {
	return t.callString(ctx, "symbol")
}

func (t *tokenBinding) Decimals(ctx context.Context) (uint8, error) {
	return t.reader.TokenDecimals(ctx, t.address)
}

func (t *tokenBinding) TotalSupply(ctx context.Context) (*big.Int, error) {
	return t.reader.callUint(ctx, t.address, t.abi, "totalSupply")
}

func (t *tokenBinding) callString(ctx context.Context, method string) (string, error) {
	values, err := t.reader.call(ctx, t.address, t.abi, method)
	if err != nil {
		return "", err
	}
	value, err := asString(values[0])
	if err != nil {
		return "", t.reader.readErr(t.address, method, err)
	}
	return value, nil
}

type namedTokenBinding struct {
	*tokenBinding
}

func (t *namedTokenBinding) Author(ctx context.Context) (string, error) {
	return t.callString(ctx, "author")
}

func (t *namedTokenBinding) Description(ctx context.Context) (string, error) {
	return t.callString(ctx, "description")
}

func (t *namedTokenBinding) LogoURI(ctx context.Context) (string, error) {
	return t.callString(ctx, "logoURI")
}
