package viewmodel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// ErrActionBusy is returned when an action is started while it is loading.
var ErrActionBusy = errors.New("action already in progress")

// Status is the closed set of user action states.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ActionUpdate is published on every status transition.
type ActionUpdate struct {
	Action string
	Status Status
	Err    error
}

// Action tracks one user-initiated operation: idle, loading, then success or
// error, and back to idle after the display interval. Failures are never retried.
type Action struct {
	name    string
	display time.Duration

	mu     sync.Mutex
	status Status
	err    error
	gen    uint64
	timer  *time.Timer
	feed   event.Feed
}

func NewAction(name string, display time.Duration) *Action {
	return &Action{name: name, display: display}
}

func (a *Action) Name() string { return a.name }

// Status returns the current state and the error of the last failed run.
func (a *Action) Status() (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.err
}

// Subscribe delivers status transitions.
func (a *Action) Subscribe(ch chan<- ActionUpdate) event.Subscription {
	return a.feed.Subscribe(ch)
}

// Run executes fn unless the action is already loading.
func (a *Action) Run(ctx context.Context, fn func(context.Context) error) error {
	a.mu.Lock()
	if a.status == StatusLoading {
		a.mu.Unlock()
		return ErrActionBusy
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.status, a.err = StatusLoading, nil
	a.mu.Unlock()
	a.feed.Send(ActionUpdate{Action: a.name, Status: StatusLoading})

	err := fn(ctx)

	final := StatusSuccess
	if err != nil {
		final = StatusError
	}
	a.mu.Lock()
	a.status, a.err = final, err
	gen := a.gen
	if a.display > 0 {
		a.timer = time.AfterFunc(a.display, func() { a.reset(gen) })
	}
	a.mu.Unlock()
	a.feed.Send(ActionUpdate{Action: a.name, Status: final, Err: err})

	if a.display <= 0 {
		a.reset(gen)
	}
	return err
}

// Close cancels a pending return to idle.
func (a *Action) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Action) reset(gen uint64) {
	a.mu.Lock()
	if a.gen != gen || a.status == StatusLoading {
		a.mu.Unlock()
		return
	}
	a.status, a.err = StatusIdle, nil
	a.timer = nil
	a.mu.Unlock()
	a.feed.Send(ActionUpdate{Action: a.name, Status: StatusIdle})
}
