package session

import (
	"context"

	"tokenclaim/internal/wallet"
)

// Handlers receive wallet events. Nil handlers are skipped.
type Handlers struct {
	AccountsChanged func(accounts []string)
	ChainChanged    func(chainID uint64)
}

func (h Handlers) dispatch(ev wallet.Event) {
	switch ev.Kind {
	case wallet.AccountsChanged:
		if h.AccountsChanged != nil {
			h.AccountsChanged(ev.Accounts)
		}
	case wallet.ChainChanged:
		if h.ChainChanged != nil {
			h.ChainChanged(ev.ChainID)
		}
	}
}

// WithWalletEvents subscribes to provider events for the duration of fn and
// always unsubscribes before returning. A subscription error cancels the
// context passed to fn and is returned when fn itself succeeds.
func WithWalletEvents(ctx context.Context, provider wallet.Provider, handlers Handlers, fn func(ctx context.Context) error) error {
	ch := make(chan wallet.Event, 16)
	sub := provider.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var subErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-ch:
				handlers.dispatch(ev)
			case err := <-sub.Err():
				subErr = err
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	err := fn(ctx)
	cancel()
	<-done
	if err == nil {
		err = subErr
	}
	return err
}
