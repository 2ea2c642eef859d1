package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RPCOptions configures an RPCProvider.
type RPCOptions struct {
	// PrivateKey enables local signing; accounts then resolve to the key's address.
	PrivateKey *ecdsa.PrivateKey
	// PollInterval controls account/chain change detection. Zero disables events.
	PollInterval time.Duration
	Logger       *zap.Logger
}

// RPCProvider is a Provider backed by a JSON-RPC endpoint such as a node or a signer daemon.
type RPCProvider struct {
	client *rpc.Client
	eth    *ethclient.Client
	owned  bool
	key    *ecdsa.PrivateKey
	from   common.Address
	poll   time.Duration
	logger *zap.Logger

	feed      event.Feed
	startOnce sync.Once
	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// DialRPCProvider connects to url and owns the resulting connection.
func DialRPCProvider(ctx context.Context, url string, opts RPCOptions) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet rpc: %w", err)
	}
	p := NewRPCProvider(client, opts)
	p.owned = true
	return p, nil
}

// NewRPCProvider wraps an existing connection. The caller keeps ownership of client.
func NewRPCProvider(client *rpc.Client, opts RPCOptions) *RPCProvider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RPCProvider{
		client: client,
		eth:    ethclient.NewClient(client),
		key:    opts.PrivateKey,
		poll:   opts.PollInterval,
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if p.key != nil {
		p.from = crypto.PubkeyToAddress(p.key.PublicKey)
	}
	return p
}

// ParsePrivateKey decodes a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *RPCProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if p.key != nil {
		switch method {
		case "eth_requestAccounts", "eth_accounts":
			return Assign(result, []string{p.from.Hex()})
		case "eth_sendTransaction":
			if len(params) != 1 {
				return fmt.Errorf("eth_sendTransaction expects 1 param, got %d", len(params))
			}
			var args TxArgs
			if err := DecodeParam(params[0], &args); err != nil {
				return err
			}
			hash, err := p.signAndSend(ctx, args)
			if err != nil {
				return err
			}
			return Assign(result, hash)
		}
	}
	return p.client.CallContext(ctx, result, method, params...)
}

func (p *RPCProvider) SubscribeEvents(ch chan<- Event) event.Subscription {
	p.startOnce.Do(func() {
		if p.poll <= 0 {
			close(p.done)
			return
		}
		go p.pollLoop()
	})
	return p.feed.Subscribe(ch)
}

// Close stops change detection and releases an owned connection.
func (p *RPCProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		if p.owned {
			p.client.Close()
		}
	})
}

func (p *RPCProvider) signAndSend(ctx context.Context, args TxArgs) (common.Hash, error) {
	if args.From != p.from {
		return common.Hash{}, fmt.Errorf("unknown account %s", args.From.Hex())
	}

	chainID, err := p.eth.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := p.eth.PendingNonceAt(ctx, p.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tip, err := p.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas tip: %w", err)
	}
	head, err := p.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	value := big.NewInt(0)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		gas, err = p.eth.EstimateGas(ctx, ethereum.CallMsg{From: p.from, To: args.To, Data: args.Data, Value: value})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      args.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := p.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	p.logger.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return signed.Hash(), nil
}

func (p *RPCProvider) pollLoop() {
	defer close(p.done)

	accounts, chainID, err := p.snapshot()
	if err != nil {
		p.logger.Warn("wallet poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
		}

		nextAccounts, nextChain, err := p.snapshot()
		if err != nil {
			p.logger.Debug("wallet poll failed", zap.Error(err))
			continue
		}
		if !sameAccounts(accounts, nextAccounts) {
			accounts = nextAccounts
			p.feed.Send(Event{Kind: AccountsChanged, Accounts: nextAccounts})
		}
		if nextChain != chainID {
			chainID = nextChain
			p.feed.Send(Event{Kind: ChainChanged, ChainID: nextChain})
		}
	}
}

func (p *RPCProvider) snapshot() ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.poll)
	defer cancel()

	var accounts []string
	if err := p.Request(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, 0, fmt.Errorf("eth_accounts: %w", err)
	}
	var chainID hexutil.Uint64
	if err := p.Request(ctx, &chainID, "eth_chainId"); err != nil {
		return nil, 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return accounts, uint64(chainID), nil
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
