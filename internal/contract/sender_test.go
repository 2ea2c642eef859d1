package contract_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/chain/chaintest"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/contract/contracttest"
	"tokenclaim/internal/wallet"
	"tokenclaim/internal/wallet/wallettest"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	factory = common.HexToAddress("0x00000000000000000000000000000000000000F0")
)

func newSender(t *testing.T, fake *chaintest.Fake) (*contract.TxSender, *contracttest.Network, *wallettest.Provider) {
	t.Helper()
	network := contracttest.NewNetwork(fake, factory)
	provider := wallettest.New([]string{account.Hex()}, 1)
	provider.Handle("eth_sendTransaction", network.SendTransaction)
	sender := contract.NewTxSender(provider, fake, contract.SenderOptions{PollInterval: 5 * time.Millisecond, Timeout: time.Second})
	return sender, network, provider
}

func TestClaimWaitsForReceipt(t *testing.T) {
	fake := chaintest.NewFake()
	sender, network, provider := newSender(t, fake)
	pool := contracttest.NewPool(poolAddr, tokenAddr, contracttest.Units(1000), contracttest.Units(100))
	network.AddPool(pool)

	receipt, err := sender.Claim(context.Background(), account, poolAddr)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, 1, provider.Calls("eth_sendTransaction"))
	require.Zero(t, pool.Remaining().Cmp(contracttest.Units(900)))

	claim, err := contract.DecodeClaimed(*receipt.Logs[0])
	require.NoError(t, err)
	require.Equal(t, account, claim.Claimer)
}

func TestClaimRevertIsTransactionFailure(t *testing.T) {
	fake := chaintest.NewFake()
	sender, network, _ := newSender(t, fake)
	network.AddPool(contracttest.NewPool(poolAddr, tokenAddr, big.NewInt(0), contracttest.Units(100)))

	receipt, err := sender.Claim(context.Background(), account, poolAddr)
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)
	require.NotNil(t, receipt)
	var txErr *apperr.TransactionFailedError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, "claim", txErr.Action)
	require.NotEmpty(t, txErr.TxHash)
}

func TestClaimUserRejection(t *testing.T) {
	fake := chaintest.NewFake()
	sender, _, provider := newSender(t, fake)
	provider.Handle("eth_sendTransaction", func(context.Context, []interface{}) (interface{}, error) {
		return nil, wallet.NewProviderError(wallet.CodeUserRejected, "user denied transaction signature")
	})

	_, err := sender.Claim(context.Background(), account, poolAddr)
	require.ErrorIs(t, err, apperr.ErrUserRejected)
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)
}

func TestWaitReceiptTimesOut(t *testing.T) {
	fake := chaintest.NewFake()
	sender := contract.NewTxSender(wallettest.New(nil, 1), fake, contract.SenderOptions{
		PollInterval: 5 * time.Millisecond,
		Timeout:      30 * time.Millisecond,
	})
	_, err := sender.WaitReceipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestCreateAllReturnsDeployedAddresses(t *testing.T) {
	fake := chaintest.NewFake()
	sender, network, _ := newSender(t, fake)

	created, receipt, err := sender.CreateAll(context.Background(), account, factory, contract.CreateParams{
		Name:        "Claim Token",
		Symbol:      "CLM",
		Author:      "alice",
		Description: "made in a test",
		LogoURI:     "ipfs://logo",
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, account, created.Creator)
	require.NotNil(t, network.Pool(created.Pool))

	reader := contract.NewReader(fake, contract.ReaderOptions{})
	meta, err := reader.ReadTokenMeta(context.Background(), created.Token)
	require.NoError(t, err)
	require.Equal(t, "CLM", meta.Symbol)
	require.Equal(t, "alice", meta.Author)

	state, err := reader.ReadPoolState(context.Background(), created.Pool)
	require.NoError(t, err)
	require.True(t, state.Remaining.Equal(decimal.NewFromInt(1_000_000)))
}

func TestCreateAllWithoutEventFails(t *testing.T) {
	fake := chaintest.NewFake()
	sender, network, provider := newSender(t, fake)
	provider.Handle("eth_sendTransaction", func(ctx context.Context, _ []interface{}) (interface{}, error) {
		hash := common.HexToHash("0xbeef")
		network.Mine(ctx, hash, types.ReceiptStatusSuccessful)
		return hash, nil
	})

	_, _, err := sender.CreateAll(context.Background(), account, factory, contract.CreateParams{Name: "x"})
	require.ErrorIs(t, err, apperr.ErrTransactionFailed)
}
