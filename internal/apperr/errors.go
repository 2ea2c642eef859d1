// Package apperr defines the error taxonomy shared by the wallet session,
// contract access and local cache layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWallet is returned when no wallet provider is configured.
	ErrNoWallet = errors.New("no wallet provider")
	// ErrUserRejected is returned when the user declines an account request.
	ErrUserRejected = errors.New("user rejected request")
	// ErrSwitchRejected is returned when the user declines a network switch.
	ErrSwitchRejected = errors.New("user rejected network switch")
	// ErrUnsupportedChain is returned when the wallet does not know the requested chain.
	ErrUnsupportedChain = errors.New("chain not supported by wallet")
	// ErrTimeout is returned when an external call exceeds its deadline.
	ErrTimeout = errors.New("external call timed out")
	// ErrStale is returned when a read was superseded by a newer request.
	ErrStale = errors.New("result superseded by newer request")

	ErrReadFailed        = errors.New("contract read failed")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrStorage           = errors.New("local storage failure")
)

// ReadFailedError reports a failed contract read for an aggregate call.
type ReadFailedError struct {
	Address string
	Method  string
	Err     error
}

func (e *ReadFailedError) Error() string {
	return fmt.Sprintf("read %s on %s: %v", e.Method, e.Address, e.Err)
}

func (e *ReadFailedError) Unwrap() error { return e.Err }

func (e *ReadFailedError) Is(target error) bool { return target == ErrReadFailed }

// TransactionFailedError reports a state-changing call that reverted or did not confirm.
type TransactionFailedError struct {
	Action string
	TxHash string
	Err    error
}

func (e *TransactionFailedError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("%s transaction: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s transaction %s: %v", e.Action, e.TxHash, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }

// StorageError reports a local persistence failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
