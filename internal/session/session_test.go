package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/model"
	"tokenclaim/internal/wallet"
	"tokenclaim/internal/wallet/wallettest"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestConnectWithoutProvider(t *testing.T) {
	s := New(nil, Options{ExpectedChainID: 1})
	defer s.Close()

	_, err := s.Connect(context.Background())
	require.ErrorIs(t, err, apperr.ErrNoWallet)
	_, err = s.SwitchNetwork(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrNoWallet)
}

func TestConnectReadsAccountAndChain(t *testing.T) {
	provider := wallettest.New([]string{alice}, 56)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	session, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.Session{Account: alice, ChainID: 56, Connected: true}, session)
	require.True(t, s.WrongNetwork())
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 1 })

	again, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, session, again)
	require.Equal(t, 1, provider.Calls("eth_requestAccounts"))
}

func TestConnectUserRejectedIsNotRetried(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	provider.Handle("eth_requestAccounts", func(context.Context, []interface{}) (interface{}, error) {
		return nil, wallet.NewProviderError(wallet.CodeUserRejected, "user rejected the request")
	})
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	_, err := s.Connect(context.Background())
	require.ErrorIs(t, err, apperr.ErrUserRejected)
	require.Equal(t, 1, provider.Calls("eth_requestAccounts"))
	require.False(t, s.Session().Connected)
	require.Zero(t, provider.ActiveSubscriptions())
}

func TestConcurrentConnectJoinsInFlightAttempt(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider.Handle("eth_requestAccounts", func(context.Context, []interface{}) (interface{}, error) {
		once.Do(func() { close(entered) })
		<-release
		return []string{alice}, nil
	})
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	results := make(chan model.Session, 2)
	errs := make(chan error, 2)
	connect := func() {
		session, err := s.Connect(context.Background())
		results <- session
		errs <- err
	}
	go connect()
	<-entered
	go connect()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
		require.Equal(t, alice, (<-results).Account)
	}
	require.Equal(t, 1, provider.Calls("eth_requestAccounts"))
}

func TestDisconnectDuringPromptAllowsFreshConnect(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
	)
	provider.Handle("eth_requestAccounts", func(context.Context, []interface{}) (interface{}, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
			return []string{alice}, nil
		}
		return []string{bob}, nil
	})
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		firstErr <- err
	}()
	<-entered
	s.Disconnect()

	session, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, bob, session.Account)
	require.Equal(t, 2, provider.Calls("eth_requestAccounts"))

	close(release)
	require.ErrorIs(t, <-firstErr, apperr.ErrStale)
	require.Equal(t, model.Session{Account: bob, ChainID: 1, Connected: true}, s.Session())
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 1 })
}

func TestEmptyAccountsEventDisconnects(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 1 })

	changes := make(chan model.Session, 4)
	sub := s.SubscribeChanges(changes)
	defer sub.Unsubscribe()

	provider.SetAccounts()
	select {
	case got := <-changes:
		require.Equal(t, model.Session{}, got)
	case <-time.After(time.Second):
		t.Fatal("no session change after empty accounts")
	}
	require.False(t, s.Session().Connected)
	require.Zero(t, s.Session().ChainID)
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 0 })
}

func TestWalletEventsUpdateSession(t *testing.T) {
	provider := wallettest.New([]string{alice}, 56)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 1 })

	provider.SetAccounts(bob)
	waitFor(t, func() bool { return s.Session().Account == bob })

	provider.SetChain(1)
	waitFor(t, func() bool { return !s.WrongNetwork() })
	require.Equal(t, model.Session{Account: bob, ChainID: 1, Connected: true}, s.Session())
}

func TestDisconnectReleasesSubscription(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 1 })

	s.Disconnect()
	require.Equal(t, model.Session{}, s.Session())
	waitFor(t, func() bool { return provider.ActiveSubscriptions() == 0 })

	// events after disconnect are ignored
	provider.SetChain(5)
	require.Equal(t, model.Session{}, s.Session())
}

func TestSwitchNetworkMapsWalletErrors(t *testing.T) {
	provider := wallettest.New([]string{alice}, 56)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	provider.Handle("wallet_switchEthereumChain", func(context.Context, []interface{}) (interface{}, error) {
		return nil, wallet.NewProviderError(wallet.CodeUserRejected, "user rejected the request")
	})
	_, err = s.SwitchNetwork(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrSwitchRejected)

	provider.Handle("wallet_switchEthereumChain", func(context.Context, []interface{}) (interface{}, error) {
		return nil, wallet.NewProviderError(wallet.CodeUnrecognizedChain, "unrecognized chain")
	})
	_, err = s.SwitchNetwork(context.Background(), 1)
	require.ErrorIs(t, err, apperr.ErrUnsupportedChain)
	require.Equal(t, 2, provider.Calls("wallet_switchEthereumChain"))
	require.True(t, s.WrongNetwork())
}

func TestSwitchNetworkRereadsChain(t *testing.T) {
	provider := wallettest.New([]string{alice}, 56)
	s := New(provider, Options{ExpectedChainID: 1})
	defer s.Close()
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	session, err := s.SwitchNetwork(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, session.ChainID)
	require.False(t, s.WrongNetwork())
}

func TestCloseRejectsConnect(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	s := New(provider, Options{ExpectedChainID: 1})
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	s.Close()
	require.Zero(t, provider.ActiveSubscriptions())
	_, err = s.Connect(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestWithWalletEventsUnsubscribesOnReturn(t *testing.T) {
	provider := wallettest.New([]string{alice}, 1)
	got := make(chan uint64, 1)
	handlers := Handlers{ChainChanged: func(id uint64) { got <- id }}

	err := WithWalletEvents(context.Background(), provider, handlers, func(ctx context.Context) error {
		require.Equal(t, 1, provider.ActiveSubscriptions())
		provider.SetChain(7)
		select {
		case id := <-got:
			require.EqualValues(t, 7, id)
		case <-time.After(time.Second):
			t.Fatal("chain change not dispatched")
		}
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, provider.ActiveSubscriptions())
}
