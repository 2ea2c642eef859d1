// Package contracttest scripts token, pool and factory contracts on a chaintest.Fake
// and answers wallet transactions against them.
package contracttest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"tokenclaim/internal/chain/chaintest"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/wallet"
)

// Units returns n whole tokens at 18 decimals.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mustABI(get func() (abi.ABI, error)) abi.ABI {
	parsed, err := get()
	if err != nil {
		panic(err)
	}
	return parsed
}

func handle(fake *chaintest.Fake, addr common.Address, parsed abi.ABI, method string, value func() (interface{}, error)) {
	m := parsed.Methods[method]
	fake.HandleCall(addr, m.ID, func([]byte) ([]byte, error) {
		v, err := value()
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(v)
	})
}

func constant(v interface{}) func() (interface{}, error) {
	return func() (interface{}, error) { return v, nil }
}

// Token is a scripted ERC20. Named tokens also dispatch author, description and logoURI.
type Token struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	Author      string
	Description string
	LogoURI     string
	Named       bool
}

// Install deploys the token on fake, replacing any earlier handlers.
func (t Token) Install(fake *chaintest.Fake) {
	parsed := mustABI(contract.TokenABI)
	code := []byte{0x60, 0x80, 0x60, 0x40}
	for _, name := range []string{"name", "symbol", "decimals", "totalSupply"} {
		code = append(code, parsed.Methods[name].ID...)
	}
	handle(fake, t.Address, parsed, "name", constant(t.Name))
	handle(fake, t.Address, parsed, "symbol", constant(t.Symbol))
	handle(fake, t.Address, parsed, "decimals", constant(t.Decimals))
	handle(fake, t.Address, parsed, "totalSupply", constant(t.TotalSupply))
	if t.Named {
		handle(fake, t.Address, parsed, "author", constant(t.Author))
		handle(fake, t.Address, parsed, "description", constant(t.Description))
		handle(fake, t.Address, parsed, "logoURI", constant(t.LogoURI))
		for _, name := range []string{"author", "description", "logoURI"} {
			code = append(code, parsed.Methods[name].ID...)
		}
	}
	fake.SetCode(t.Address, code)
}

// Pool is a scripted claim pool with mutable counters.
type Pool struct {
	Address common.Address
	Token   common.Address

	mu           sync.Mutex
	remaining    *big.Int
	claimAmount  *big.Int
	claimedTotal *big.Int
	claimCount   uint64
	failures     map[string]error
}

func NewPool(addr, token common.Address, remaining, claimAmount *big.Int) *Pool {
	return &Pool{
		Address:      addr,
		Token:        token,
		remaining:    new(big.Int).Set(remaining),
		claimAmount:  new(big.Int).Set(claimAmount),
		claimedTotal: new(big.Int),
		failures:     make(map[string]error),
	}
}

// Fail makes reads of method revert with err.
func (p *Pool) Fail(method string, err error) {
	p.mu.Lock()
	p.failures[method] = err
	p.mu.Unlock()
}

// Remaining returns the raw remaining balance.
func (p *Pool) Remaining() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.remaining)
}

// Install deploys the pool getters on fake.
func (p *Pool) Install(fake *chaintest.Fake) {
	parsed := mustABI(contract.PoolABI)
	read := func(method string, get func() interface{}) {
		handle(fake, p.Address, parsed, method, func() (interface{}, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if err := p.failures[method]; err != nil {
				return nil, err
			}
			return get(), nil
		})
	}
	read("remaining", func() interface{} { return new(big.Int).Set(p.remaining) })
	read("claimAmount", func() interface{} { return new(big.Int).Set(p.claimAmount) })
	read("claimedTotal", func() interface{} { return new(big.Int).Set(p.claimedTotal) })
	read("claimCount", func() interface{} { return new(big.Int).SetUint64(p.claimCount) })
	read("token", func() interface{} { return p.Token })
	fake.SetCode(p.Address, append([]byte{0x60, 0x80}, parsed.Methods["claim"].ID...))
}

// Claim pays out min(claimAmount, remaining) to by.
func (p *Pool) Claim(by common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining.Sign() <= 0 {
		return nil, errors.New("pool empty")
	}
	amount := new(big.Int).Set(p.claimAmount)
	if p.remaining.Cmp(amount) < 0 {
		amount.Set(p.remaining)
	}
	p.remaining.Sub(p.remaining, amount)
	p.claimedTotal.Add(p.claimedTotal, amount)
	p.claimCount++
	return amount, nil
}

// ClaimedLog builds a Claimed event emitted by pool.
func ClaimedLog(pool, by common.Address, amount *big.Int) *types.Log {
	parsed := mustABI(contract.PoolABI)
	data, err := parsed.Events["Claimed"].Inputs.NonIndexed().Pack(amount)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: pool,
		Topics:  []common.Hash{contract.ClaimedTopic(), common.BytesToHash(by.Bytes())},
		Data:    data,
	}
}

// CreatedLog builds a factory Created event.
func CreatedLog(factory, token, pool, creator common.Address) *types.Log {
	return &types.Log{
		Address: factory,
		Topics: []common.Hash{
			contract.CreatedTopic(),
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(pool.Bytes()),
			common.BytesToHash(creator.Bytes()),
		},
	}
}

// Network mines wallet transactions against installed pools and a factory.
type Network struct {
	Fake    *chaintest.Fake
	Factory common.Address
	// CreatedSupply and CreatedClaimAmount configure contracts deployed through the factory.
	CreatedSupply      *big.Int
	CreatedClaimAmount *big.Int

	mu      sync.Mutex
	pools   map[common.Address]*Pool
	nonce   uint64
	genesis uint64
}

func NewNetwork(fake *chaintest.Fake, factory common.Address) *Network {
	return &Network{
		Fake:               fake,
		Factory:            factory,
		CreatedSupply:      Units(1_000_000),
		CreatedClaimAmount: Units(100),
		pools:              make(map[common.Address]*Pool),
		genesis:            1_700_000_000,
	}
}

// AddPool installs p and routes claim transactions to it.
func (n *Network) AddPool(p *Pool) {
	p.Install(n.Fake)
	n.mu.Lock()
	n.pools[p.Address] = p
	n.mu.Unlock()
}

// Pool returns an installed pool.
func (n *Network) Pool(addr common.Address) *Pool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pools[addr]
}

// SendTransaction answers eth_sendTransaction. It matches wallettest.Handler.
func (n *Network) SendTransaction(ctx context.Context, params []interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("eth_sendTransaction expects 1 param")
	}
	var args wallet.TxArgs
	if err := wallet.DecodeParam(params[0], &args); err != nil {
		return nil, err
	}
	if args.To == nil || len(args.Data) < 4 {
		return nil, fmt.Errorf("unsupported transaction")
	}

	n.mu.Lock()
	n.nonce++
	nonce := n.nonce
	pool := n.pools[*args.To]
	n.mu.Unlock()
	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(nonce).Bytes())

	var logs []*types.Log
	status := types.ReceiptStatusSuccessful
	switch {
	case pool != nil:
		amount, err := pool.Claim(args.From)
		if err != nil {
			status = types.ReceiptStatusFailed
			break
		}
		logs = append(logs, ClaimedLog(pool.Address, args.From, amount))
	case *args.To == n.Factory:
		created, err := n.create(args.From, args.Data, nonce)
		if err != nil {
			return nil, err
		}
		logs = append(logs, created)
	default:
		return nil, fmt.Errorf("no contract at %s", args.To.Hex())
	}

	n.Mine(ctx, hash, status, logs...)
	return hash, nil
}

func (n *Network) create(creator common.Address, data []byte, nonce uint64) (*types.Log, error) {
	parsed := mustABI(contract.FactoryABI)
	method, err := parsed.MethodById(data[:4])
	if err != nil || method.Name != "createAll" {
		return nil, fmt.Errorf("unsupported factory call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i], _ = v.(string)
	}

	tokenAddr := crypto.CreateAddress(n.Factory, nonce*2)
	poolAddr := crypto.CreateAddress(n.Factory, nonce*2+1)
	Token{
		Address:     tokenAddr,
		Name:        fields[0],
		Symbol:      fields[1],
		Decimals:    18,
		TotalSupply: n.CreatedSupply,
		Author:      fields[2],
		Description: fields[3],
		LogoURI:     fields[4],
		Named:       true,
	}.Install(n.Fake)
	n.AddPool(NewPool(poolAddr, tokenAddr, n.CreatedSupply, n.CreatedClaimAmount))
	return CreatedLog(n.Factory, tokenAddr, poolAddr, creator), nil
}

// Mine records logs in the next block with a receipt of the given status.
func (n *Network) Mine(ctx context.Context, hash common.Hash, status uint64, logs ...*types.Log) *types.Receipt {
	head, _ := n.Fake.LatestBlockNumber(ctx)
	block := head + 1
	n.Fake.SetBlockTime(block, n.genesis+block*3)
	n.Fake.SetHead(block)

	for i, log := range logs {
		log.BlockNumber = block
		log.TxHash = hash
		log.Index = uint(i)
		n.Fake.AddLog(*log)
	}
	receipt := &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(block),
		Logs:        logs,
	}
	n.Fake.SetReceipt(receipt)
	return receipt
}
