package app

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tokenclaim/internal/activity"
	"tokenclaim/internal/chain/chaintest"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/contract/contracttest"
	"tokenclaim/internal/history"
	"tokenclaim/internal/scan"
	"tokenclaim/internal/session"
	"tokenclaim/internal/storage"
	"tokenclaim/internal/viewmodel"
	"tokenclaim/internal/wallet/wallettest"
)

const alice = "0x1111111111111111111111111111111111111111"

var (
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	poolAddr    = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000F0")
	now         = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	app      *App
	fake     *chaintest.Fake
	network  *contracttest.Network
	provider *wallettest.Provider
	pool     *contracttest.Pool
	store    *storage.MemoryStore
}

func newFixture(t *testing.T, remaining int64) *fixture {
	t.Helper()
	fake := chaintest.NewFake()
	network := contracttest.NewNetwork(fake, factoryAddr)
	contracttest.Token{
		Address:     tokenAddr,
		Name:        "Claim Token",
		Symbol:      "CLM",
		Decimals:    18,
		TotalSupply: contracttest.Units(1_000_000),
	}.Install(fake)
	pool := contracttest.NewPool(poolAddr, tokenAddr, contracttest.Units(remaining), contracttest.Units(100))
	network.AddPool(pool)

	provider := wallettest.New([]string{alice}, 1)
	provider.Handle("eth_sendTransaction", network.SendTransaction)

	store := storage.NewMemoryStore()
	reader := contract.NewReader(fake, contract.ReaderOptions{})
	cache := activity.New(store, fake, reader, activity.Options{Scan: scan.Config{BatchSize: 1000}})
	app := New(Deps{
		Session:  session.New(provider, session.Options{ExpectedChainID: 1}),
		Reader:   reader,
		Sender:   contract.NewTxSender(provider, fake, contract.SenderOptions{PollInterval: 5 * time.Millisecond, Timeout: time.Second}),
		Activity: cache,
		History:  history.NewRegistry(store, reader, cache, nil),
		Chain:    fake,
	}, Config{
		ExpectedChainID: 1,
		Factory:         factoryAddr,
		Now:             func() time.Time { return now },
	})
	t.Cleanup(app.Close)
	return &fixture{app: app, fake: fake, network: network, provider: provider, pool: pool, store: store}
}

func TestConnectLoadClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	vm, err := f.app.Connect(ctx)
	require.NoError(t, err)
	require.True(t, vm.Session.Connected)
	require.False(t, vm.WrongNetwork)

	vm, err = f.app.Load(ctx, poolAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, 100, vm.Progress)
	require.True(t, vm.Eligible.Equal(decimal.NewFromInt(100)))
	require.Empty(t, vm.Events)
	require.Equal(t, tokenAddr.Hex(), vm.Contract.TokenAddress)

	records, err := f.app.History().List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Claim Token", records[0].Name)
	require.Equal(t, poolAddr.Hex(), records[0].PoolAddress)
	require.Equal(t, now.UnixMilli(), records[0].CreatedAtMs)

	vm, err = f.app.Claim(ctx)
	require.NoError(t, err)
	require.True(t, vm.Pool.Remaining.Equal(decimal.NewFromInt(900)))
	require.EqualValues(t, 1, vm.Pool.ClaimCount)
	require.Equal(t, 100, vm.Progress)
	require.Len(t, vm.Events, 1)
	require.True(t, vm.Events[0].Amount.Equal(decimal.NewFromInt(100)))
	require.Equal(t, alice, vm.Events[0].Claimer)
	require.NotEmpty(t, vm.Events[0].TxHash)
	require.Len(t, vm.Series, 1)
	require.True(t, vm.Series[0].Equal(decimal.NewFromInt(999_100)))
	require.Len(t, vm.Sparkline, 1)
	require.Equal(t, 1, vm.UniqueClaimers)

	status, _ := f.app.claim.Status()
	require.Equal(t, viewmodel.StatusIdle, status)

	// a rescan finds the same claim on chain
	events, err := f.app.Activity(ctx, poolAddr.Hex(), 0, true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, vm.Events[0].TxHash, events[0].TxHash)
	require.Equal(t, vm.Events[0].TimestampMs, events[0].TimestampMs)

	stats, err := f.app.Refresh(ctx, tokenAddr.Hex())
	require.NoError(t, err)
	got := stats[records[0].Key()]
	require.False(t, got.Loading)
	require.Equal(t, 1, *got.UniqueClaimers)
	require.True(t, got.Remaining.Equal(decimal.NewFromInt(900)))
}

func TestClaimRequiresConnectionAndContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	_, err := f.app.Claim(ctx)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = f.app.Connect(ctx)
	require.NoError(t, err)
	_, err = f.app.Claim(ctx)
	require.ErrorIs(t, err, ErrNoContract)
	require.Zero(t, f.provider.Calls("eth_sendTransaction"))
}

func TestDisconnectDropsLoadedView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	_, err := f.app.Connect(ctx)
	require.NoError(t, err)
	_, err = f.app.Load(ctx, poolAddr.Hex())
	require.NoError(t, err)

	vm := f.app.Disconnect()
	require.False(t, vm.Session.Connected)
	require.Nil(t, vm.Contract)
	require.Nil(t, vm.Pool)

	_, err = f.app.Connect(ctx)
	require.NoError(t, err)
	_, err = f.app.Claim(ctx)
	require.ErrorIs(t, err, ErrNoContract)
}

func TestClaimOnEmptyPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	_, err := f.app.Connect(ctx)
	require.NoError(t, err)
	vm, err := f.app.Load(ctx, poolAddr.Hex())
	require.NoError(t, err)
	require.True(t, vm.Eligible.IsZero())

	_, err = f.app.Claim(ctx)
	require.ErrorIs(t, err, ErrPoolEmpty)
}

func TestCreateRecordsDeployment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)

	_, err := f.app.Create(ctx, CreateParams{Name: "New", Symbol: "NEW", Author: "alice", Description: "d"})
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = f.app.Connect(ctx)
	require.NoError(t, err)
	_, err = f.app.Create(ctx, CreateParams{Name: "New", Symbol: "NEW"})
	require.ErrorIs(t, err, ErrInvalidParams)

	vm, err := f.app.Create(ctx, CreateParams{Name: "New", Symbol: "NEW", Author: "alice", Description: "fresh", LogoID: 2})
	require.NoError(t, err)
	require.Equal(t, 0, vm.Progress)
	require.Equal(t, "NEW", vm.Token.Symbol)
	require.Equal(t, "2", vm.Token.LogoURI)
	require.Empty(t, vm.Events)

	records, err := f.app.History().List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, vm.Contract.TokenAddress, records[0].TokenAddress)
	require.Equal(t, vm.Contract.PoolAddress, records[0].PoolAddress)
	require.Equal(t, 2, records[0].LogoID)
	require.EqualValues(t, 1, records[0].PoolCreationBlock)

	vm, err = f.app.Claim(ctx)
	require.NoError(t, err)
	require.Len(t, vm.Events, 1)
	require.True(t, vm.Pool.Remaining.Equal(decimal.NewFromInt(999_900)))
}

func TestLoadRejectsBadAddress(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.app.Load(context.Background(), "0x123")
	require.Error(t, err)

	status, last := f.app.load.Status()
	require.Equal(t, viewmodel.StatusIdle, status)
	require.NoError(t, last)
}

func TestSwitchNetworkAndClearHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1000)
	f.provider.SetChain(56)

	vm, err := f.app.Connect(ctx)
	require.NoError(t, err)
	require.True(t, vm.WrongNetwork)

	vm, err = f.app.SwitchNetwork(ctx)
	require.NoError(t, err)
	require.False(t, vm.WrongNetwork)

	_, err = f.app.Load(ctx, poolAddr.Hex())
	require.NoError(t, err)
	require.NoError(t, f.app.ClearHistory(ctx))
	records, err := f.app.History().List(ctx)
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = f.app.Refresh(ctx, tokenAddr.Hex())
	require.Error(t, err)
}
