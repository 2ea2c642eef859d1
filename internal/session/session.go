// Package session owns the wallet connection: account, chain and the
// lifetime of the wallet event subscription.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/chain"
	"tokenclaim/internal/model"
	"tokenclaim/internal/wallet"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options tunes a ChainSession.
type Options struct {
	ExpectedChainID uint64
	CallTimeout     time.Duration
	Logger          *zap.Logger
}

type connectCall struct {
	done    chan struct{}
	session model.Session
	err     error
}

// ChainSession tracks the connected account and chain.
// A Connect issued while another is in flight joins it.
type ChainSession struct {
	provider wallet.Provider
	expected uint64
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	session  model.Session
	state    state
	gen      uint64
	inflight *connectCall
	stop     context.CancelFunc
	closed   bool

	wg   sync.WaitGroup
	feed event.Feed
}

// New creates a session. A nil provider makes Connect fail with apperr.ErrNoWallet.
func New(provider wallet.Provider, opts Options) *ChainSession {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSession{
		provider: provider,
		expected: opts.ExpectedChainID,
		timeout:  opts.CallTimeout,
		logger:   logger,
	}
}

// Session returns a snapshot of the current state.
func (s *ChainSession) Session() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// WrongNetwork reports whether the wallet is on a chain other than the expected one.
func (s *ChainSession) WrongNetwork() bool {
	return s.Session().WrongNetwork(s.expected)
}

// SubscribeChanges delivers a snapshot after every session change.
func (s *ChainSession) SubscribeChanges(ch chan<- model.Session) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Connect requests accounts and the chain ID, then listens for wallet events
// until disconnect.
func (s *ChainSession) Connect(ctx context.Context) (model.Session, error) {
	if s.provider == nil {
		return model.Session{}, apperr.ErrNoWallet
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Session{}, ErrClosed
	}
	if s.state == stateConnected {
		current := s.session
		s.mu.Unlock()
		return current, nil
	}
	if call := s.inflight; call != nil {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.session, call.err
		case <-ctx.Done():
			return model.Session{}, ctx.Err()
		}
	}
	call := &connectCall{done: make(chan struct{})}
	s.inflight = call
	s.state = stateConnecting
	gen := s.gen
	s.mu.Unlock()

	session, err := s.requestSession(ctx)

	s.mu.Lock()
	if s.inflight == call {
		s.inflight = nil
	}
	switch {
	case s.gen != gen:
		// disconnected or closed while the wallet prompt was open
		session, err = model.Session{}, apperr.ErrStale
	case err != nil:
		s.state = stateDisconnected
	default:
		s.session = session
		s.state = stateConnected
		s.listenLocked()
	}
	s.mu.Unlock()
	call.session, call.err = session, err
	close(call.done)

	if err != nil {
		s.logger.Warn("wallet connect failed", zap.Error(err))
		return model.Session{}, err
	}
	s.logger.Info("wallet connected", zap.String("account", session.Account), zap.Uint64("chain_id", session.ChainID))
	s.feed.Send(session)
	return session, nil
}

func (s *ChainSession) requestSession(ctx context.Context) (model.Session, error) {
	var accounts []string
	err := chain.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.provider.Request(ctx, &accounts, "eth_requestAccounts")
	})
	if err != nil {
		if code, ok := wallet.ErrorCode(err); ok && code == wallet.CodeUserRejected {
			return model.Session{}, fmt.Errorf("%w: %v", apperr.ErrUserRejected, err)
		}
		return model.Session{}, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 || strings.TrimSpace(accounts[0]) == "" {
		return model.Session{}, errors.New("wallet returned no accounts")
	}

	chainID, err := s.readChainID(ctx)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Account: accounts[0], ChainID: chainID, Connected: true}, nil
}

func (s *ChainSession) readChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	err := chain.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.provider.Request(ctx, &id, "eth_chainId")
	})
	if err != nil {
		return 0, fmt.Errorf("read chain id: %w", err)
	}
	return uint64(id), nil
}

// listenLocked starts the event listener for the current generation.
func (s *ChainSession) listenLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	gen := s.gen

	handlers := Handlers{
		AccountsChanged: func(accounts []string) { s.onAccounts(gen, accounts) },
		ChainChanged:    func(chainID uint64) { s.onChain(gen, chainID) },
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := WithWalletEvents(ctx, s.provider, handlers, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
		if err != nil {
			s.logger.Warn("wallet event subscription failed", zap.Error(err))
			s.mu.Lock()
			if s.gen == gen {
				s.resetLocked()
			}
			snapshot := s.session
			s.mu.Unlock()
			s.feed.Send(snapshot)
		}
	}()
}

func (s *ChainSession) onAccounts(gen uint64, accounts []string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if len(accounts) == 0 {
		s.logger.Info("wallet reported no accounts, disconnecting")
		s.resetLocked()
	} else {
		s.session.Account = accounts[0]
		s.session.Connected = true
	}
	snapshot := s.session
	s.mu.Unlock()
	s.feed.Send(snapshot)
}

func (s *ChainSession) onChain(gen uint64, chainID uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.session.ChainID = chainID
	snapshot := s.session
	s.mu.Unlock()
	s.logger.Info("wallet chain changed", zap.Uint64("chain_id", chainID))
	s.feed.Send(snapshot)
}

// Disconnect clears local state and releases the event subscription.
// The wallet itself is not contacted.
func (s *ChainSession) Disconnect() {
	s.mu.Lock()
	was := s.state
	s.resetLocked()
	s.mu.Unlock()
	if was != stateDisconnected {
		s.logger.Info("wallet disconnected", zap.Stringer("from", was))
		s.feed.Send(model.Session{})
	}
}

// resetLocked invalidates the current generation, detaches any pending Connect
// and stops the listener without waiting for it.
func (s *ChainSession) resetLocked() {
	s.gen++
	s.session = model.Session{}
	s.state = stateDisconnected
	s.inflight = nil
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// SwitchNetwork asks the wallet to change chains and re-reads the active chain ID.
func (s *ChainSession) SwitchNetwork(ctx context.Context, target uint64) (model.Session, error) {
	if s.provider == nil {
		return model.Session{}, apperr.ErrNoWallet
	}
	err := chain.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.provider.Request(ctx, nil, "wallet_switchEthereumChain", wallet.SwitchChainArgs{ChainID: hexutil.Uint64(target)})
	})
	if err != nil {
		if code, ok := wallet.ErrorCode(err); ok {
			switch code {
			case wallet.CodeUserRejected:
				return s.Session(), fmt.Errorf("%w: %v", apperr.ErrSwitchRejected, err)
			case wallet.CodeUnrecognizedChain:
				return s.Session(), fmt.Errorf("%w: chain %d: %v", apperr.ErrUnsupportedChain, target, err)
			}
		}
		return s.Session(), fmt.Errorf("switch chain: %w", err)
	}

	chainID, err := s.readChainID(ctx)
	if err != nil {
		return s.Session(), err
	}
	s.mu.Lock()
	s.session.ChainID = chainID
	snapshot := s.session
	s.mu.Unlock()
	s.logger.Info("wallet chain switched", zap.Uint64("chain_id", chainID))
	s.feed.Send(snapshot)
	return snapshot, nil
}

// Close disconnects and waits for the listener to exit.
func (s *ChainSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.resetLocked()
	s.mu.Unlock()
	s.wg.Wait()
}
