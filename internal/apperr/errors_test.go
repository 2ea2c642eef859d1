package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadFailedErrorMatching(t *testing.T) {
	err := fmt.Errorf("load pool: %w", &ReadFailedError{
		Address: "0x1111111111111111111111111111111111111111",
		Method:  "claimedTotal",
		Err:     context.DeadlineExceeded,
	})

	require.ErrorIs(t, err, ErrReadFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var readErr *ReadFailedError
	require.True(t, errors.As(err, &readErr))
	require.Equal(t, "claimedTotal", readErr.Method)
	require.Contains(t, err.Error(), "0x1111111111111111111111111111111111111111")
}

func TestTransactionAndStorageErrors(t *testing.T) {
	txErr := &TransactionFailedError{Action: "claim", TxHash: "0xabc", Err: errors.New("reverted")}
	require.ErrorIs(t, txErr, ErrTransactionFailed)
	require.NotErrorIs(t, txErr, ErrStorage)
	require.Equal(t, "claim transaction 0xabc: reverted", txErr.Error())

	noHash := &TransactionFailedError{Action: "create", Err: errors.New("rejected")}
	require.Equal(t, "create transaction: rejected", noHash.Error())

	storeErr := &StorageError{Op: "set", Key: "tc.history", Err: errors.New("quota exceeded")}
	require.ErrorIs(t, storeErr, ErrStorage)
	require.Contains(t, storeErr.Error(), "tc.history")
}
