// Package wallet models the EIP-1193 style provider used for account access,
// network switching and transaction submission.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

// EventKind is the closed set of provider notifications.
type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return "unknown"
	}
}

// Event is a provider notification.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  uint64
}

// Provider is the wallet transport.
type Provider interface {
	// Request performs a JSON-RPC style call and decodes the response into result.
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
	// SubscribeEvents delivers account and chain notifications until unsubscribed.
	SubscribeEvents(ch chan<- Event) event.Subscription
}

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// SwitchChainArgs is the wallet_switchEthereumChain parameter object.
type SwitchChainArgs struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

// Assign copies value into result through its JSON form, mirroring how RPC responses decode.
func Assign(result interface{}, value interface{}) error {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// DecodeParam converts a loosely typed request parameter into a concrete struct.
func DecodeParam(param interface{}, out interface{}) error {
	raw, err := json.Marshal(param)
	if err != nil {
		return fmt.Errorf("encode param: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode param: %w", err)
	}
	return nil
}
