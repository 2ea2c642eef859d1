// Package chaintest provides an in-memory chain backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers an eth_call with ABI-encoded output.
type CallHandler func(data []byte) ([]byte, error)

// Fake is a scripted chain backend.
type Fake struct {
	mu         sync.Mutex
	calls      map[common.Address]map[[4]byte]CallHandler
	code       map[common.Address][]byte
	logs       []types.Log
	head       uint64
	timestamps map[uint64]uint64
	receipts   map[common.Hash]*types.Receipt

	filterCalls int
	// BeforeFilterLogs runs before every FilterLogs call when set.
	BeforeFilterLogs func()
}

// NewFake returns an empty backend.
func NewFake() *Fake {
	return &Fake{
		calls:      make(map[common.Address]map[[4]byte]CallHandler),
		code:       make(map[common.Address][]byte),
		timestamps: make(map[uint64]uint64),
		receipts:   make(map[common.Hash]*types.Receipt),
	}
}

// HandleCall registers a handler for a contract method selector.
func (f *Fake) HandleCall(addr common.Address, selector []byte, handler CallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var key [4]byte
	copy(key[:], selector)
	if f.calls[addr] == nil {
		f.calls[addr] = make(map[[4]byte]CallHandler)
	}
	f.calls[addr][key] = handler
}

// SetCode sets deployed bytecode for an address.
func (f *Fake) SetCode(addr common.Address, code []byte) {
	f.mu.Lock()
	f.code[addr] = code
	f.mu.Unlock()
}

// AddLog appends a log and advances the head to its block.
func (f *Fake) AddLog(log types.Log) {
	f.mu.Lock()
	f.logs = append(f.logs, log)
	if log.BlockNumber > f.head {
		f.head = log.BlockNumber
	}
	f.mu.Unlock()
}

// SetHead sets the latest block number.
func (f *Fake) SetHead(number uint64) {
	f.mu.Lock()
	f.head = number
	f.mu.Unlock()
}

// SetBlockTime sets a block timestamp in seconds.
func (f *Fake) SetBlockTime(number, ts uint64) {
	f.mu.Lock()
	f.timestamps[number] = ts
	f.mu.Unlock()
}

// SetReceipt stores a receipt for a transaction hash.
func (f *Fake) SetReceipt(receipt *types.Receipt) {
	f.mu.Lock()
	f.receipts[receipt.TxHash] = receipt
	f.mu.Unlock()
}

// FilterCalls returns how many FilterLogs calls were served.
func (f *Fake) FilterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filterCalls
}

func (f *Fake) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("invalid call")
	}
	var key [4]byte
	copy(key[:], msg.Data[:4])

	f.mu.Lock()
	handler := f.calls[*msg.To][key]
	f.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("execution reverted: no handler for %x on %s", key, msg.To.Hex())
	}
	return handler(msg.Data)
}

func (f *Fake) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[account], nil
}

func (f *Fake) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *Fake) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.timestamps[number]
	if !ok {
		return 0, fmt.Errorf("unknown block %d", number)
	}
	return ts, nil
}

func (f *Fake) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if f.BeforeFilterLogs != nil {
		f.BeforeFilterLogs()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++

	out := make([]types.Log, 0)
	for _, log := range f.logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		if len(addresses) > 0 && !containsAddress(addresses, log.Address) {
			continue
		}
		if len(topic0) > 0 && (len(log.Topics) == 0 || !containsHash(topic0, log.Topics[0])) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (f *Fake) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, item := range list {
		if item == addr {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, item := range list {
		if item == h {
			return true
		}
	}
	return false
}
