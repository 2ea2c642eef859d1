// Package wallettest provides a scripted wallet provider for tests.
package wallettest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"tokenclaim/internal/wallet"
)

// Handler answers a provider request. The returned value is assigned to the caller's result.
type Handler func(ctx context.Context, params []interface{}) (interface{}, error)

// Provider is an in-memory wallet.Provider.
type Provider struct {
	mu       sync.Mutex
	accounts []string
	chainID  uint64
	handlers map[string]Handler
	calls    map[string]int
	active   int

	feed event.Feed
}

// New returns a provider exposing accounts on chainID.
func New(accounts []string, chainID uint64) *Provider {
	return &Provider{
		accounts: append([]string(nil), accounts...),
		chainID:  chainID,
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
}

// Handle overrides the default behavior for method.
func (p *Provider) Handle(method string, handler Handler) {
	p.mu.Lock()
	p.handlers[method] = handler
	p.mu.Unlock()
}

// Calls returns how many times method was requested.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// ActiveSubscriptions returns the number of live event subscriptions.
func (p *Provider) ActiveSubscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetAccounts changes the accounts and notifies subscribers.
func (p *Provider) SetAccounts(accounts ...string) int {
	p.mu.Lock()
	p.accounts = append([]string(nil), accounts...)
	p.mu.Unlock()
	return p.feed.Send(wallet.Event{Kind: wallet.AccountsChanged, Accounts: accounts})
}

// SetChain changes the active chain and notifies subscribers.
func (p *Provider) SetChain(chainID uint64) int {
	p.mu.Lock()
	p.chainID = chainID
	p.mu.Unlock()
	return p.feed.Send(wallet.Event{Kind: wallet.ChainChanged, ChainID: chainID})
}

func (p *Provider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p.mu.Lock()
	p.calls[method]++
	handler := p.handlers[method]
	p.mu.Unlock()

	if handler != nil {
		value, err := handler(ctx, params)
		if err != nil {
			return err
		}
		return wallet.Assign(result, value)
	}

	switch method {
	case "eth_requestAccounts", "eth_accounts":
		p.mu.Lock()
		accounts := append([]string(nil), p.accounts...)
		p.mu.Unlock()
		return wallet.Assign(result, accounts)
	case "eth_chainId":
		p.mu.Lock()
		id := p.chainID
		p.mu.Unlock()
		return wallet.Assign(result, hexutil.Uint64(id))
	case "wallet_switchEthereumChain":
		if len(params) != 1 {
			return fmt.Errorf("wallet_switchEthereumChain expects 1 param")
		}
		var args wallet.SwitchChainArgs
		if err := wallet.DecodeParam(params[0], &args); err != nil {
			return err
		}
		p.SetChain(uint64(args.ChainID))
		return wallet.Assign(result, nil)
	default:
		return fmt.Errorf("method %s not supported", method)
	}
}

func (p *Provider) SubscribeEvents(ch chan<- wallet.Event) event.Subscription {
	sub := p.feed.Subscribe(ch)
	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	return &trackedSub{Subscription: sub, provider: p}
}

type trackedSub struct {
	event.Subscription
	provider *Provider
	once     sync.Once
}

func (s *trackedSub) Unsubscribe() {
	s.once.Do(func() {
		s.provider.mu.Lock()
		s.provider.active--
		s.provider.mu.Unlock()
	})
	s.Subscription.Unsubscribe()
}
