// Package app wires the wallet session, contract access and local caches into
// the user-facing flows: connect, switch network, load, create, claim and
// history maintenance.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenclaim/internal/activity"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/history"
	"tokenclaim/internal/model"
	"tokenclaim/internal/session"
	"tokenclaim/internal/viewmodel"
)

var (
	ErrNotConnected  = errors.New("wallet not connected")
	ErrNoContract    = errors.New("no contract loaded")
	ErrNoFactory     = errors.New("factory address not configured")
	ErrPoolEmpty     = errors.New("pool has nothing left to claim")
	ErrInvalidParams = errors.New("name, symbol, author and description are required")
)

const (
	defaultTokenName   = "Token"
	defaultTokenSymbol = "TKN"
)

// Chain is the block lookup surface the flows need.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Deps are the components an App coordinates.
type Deps struct {
	Session  *session.ChainSession
	Reader   *contract.Reader
	Sender   *contract.TxSender
	Activity *activity.Cache
	History  *history.Registry
	Chain    Chain
	Logger   *zap.Logger
}

// Config holds flow-level settings.
type Config struct {
	ExpectedChainID uint64
	Factory         common.Address
	StatusInterval  time.Duration
	Now             func() time.Time
}

// CreateParams are the user inputs for a new token and pool.
type CreateParams struct {
	Name        string
	Symbol      string
	Author      string
	Description string
	LogoID      int
}

func (p CreateParams) valid() bool {
	for _, field := range []string{p.Name, p.Symbol, p.Author, p.Description} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// App runs every user flow inside its own Action.
type App struct {
	session  *session.ChainSession
	reader   *contract.Reader
	sender   *contract.TxSender
	activity *activity.Cache
	history  *history.Registry
	chain    Chain
	views    *viewmodel.Assembler
	logger   *zap.Logger
	cfg      Config

	connect *viewmodel.Action
	switchN *viewmodel.Action
	load    *viewmodel.Action
	create  *viewmodel.Action
	claim   *viewmodel.Action
	refresh *viewmodel.Action
	clear   *viewmodel.Action
}

func New(deps Deps, cfg Config) *App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		session:  deps.Session,
		reader:   deps.Reader,
		sender:   deps.Sender,
		activity: deps.Activity,
		history:  deps.History,
		chain:    deps.Chain,
		views:    viewmodel.NewAssembler(deps.Session, deps.Reader, deps.Activity, cfg.ExpectedChainID, logger),
		logger:   logger,
		cfg:      cfg,
		connect:  viewmodel.NewAction("connect", cfg.StatusInterval),
		switchN:  viewmodel.NewAction("switch", cfg.StatusInterval),
		load:     viewmodel.NewAction("load", cfg.StatusInterval),
		create:   viewmodel.NewAction("create", cfg.StatusInterval),
		claim:    viewmodel.NewAction("claim", cfg.StatusInterval),
		refresh:  viewmodel.NewAction("refresh", cfg.StatusInterval),
		clear:    viewmodel.NewAction("clear", cfg.StatusInterval),
	}
}

// Actions lists the flow actions in a stable order.
func (a *App) Actions() []*viewmodel.Action {
	return []*viewmodel.Action{a.connect, a.switchN, a.load, a.create, a.claim, a.refresh, a.clear}
}

// View returns the latest assembled view.
func (a *App) View() viewmodel.ViewModel {
	vm, _ := a.views.Current()
	return vm
}

func (a *App) Session() *session.ChainSession { return a.session }

func (a *App) History() *history.Registry { return a.history }

// Connect prompts the wallet for an account.
func (a *App) Connect(ctx context.Context) (viewmodel.ViewModel, error) {
	err := a.connect.Run(ctx, func(ctx context.Context) error {
		_, err := a.session.Connect(ctx)
		return err
	})
	return a.View(), err
}

// Disconnect forgets the wallet locally and drops the loaded view.
func (a *App) Disconnect() viewmodel.ViewModel {
	a.session.Disconnect()
	a.views.Invalidate()
	return a.View()
}

// SwitchNetwork asks the wallet to move to the expected chain.
func (a *App) SwitchNetwork(ctx context.Context) (viewmodel.ViewModel, error) {
	err := a.switchN.Run(ctx, func(ctx context.Context) error {
		_, err := a.session.SwitchNetwork(ctx, a.cfg.ExpectedChainID)
		return err
	})
	return a.View(), err
}

// Load reads the pool at address, records it in history and shows its activity.
func (a *App) Load(ctx context.Context, address string) (viewmodel.ViewModel, error) {
	var vm viewmodel.ViewModel
	err := a.load.Run(ctx, func(ctx context.Context) error {
		pool, err := contract.ParseAddress(address)
		if err != nil {
			return err
		}
		token, err := a.reader.PoolToken(ctx, pool)
		if err != nil {
			return err
		}
		head, err := a.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}

		ref := model.ContractRef{TokenAddress: token.Hex(), PoolAddress: pool.Hex(), ChainID: a.session.Session().ChainID}
		vm, err = a.views.Load(ctx, ref, 0)
		if err != nil {
			return err
		}

		rec := model.DeploymentRecord{
			TokenAddress:      ref.TokenAddress,
			PoolAddress:       ref.PoolAddress,
			ChainID:           ref.ChainID,
			CreatedAtMs:       a.cfg.Now().UnixMilli(),
			Name:              defaultTokenName,
			Symbol:            defaultTokenSymbol,
			PoolCreationBlock: head,
		}
		if vm.Token != nil {
			rec.Name = orDefault(vm.Token.Name, defaultTokenName)
			rec.Symbol = orDefault(vm.Token.Symbol, defaultTokenSymbol)
			rec.Author = vm.Token.Author
			rec.Description = vm.Token.Description
		}
		_, err = a.history.Upsert(ctx, rec)
		return err
	})
	if err != nil {
		return a.View(), err
	}
	a.logger.Info("contract loaded", zap.String("pool", address), zap.Int("events", len(vm.Events)))
	return vm, nil
}

// Create deploys a token and pool through the factory and loads them.
func (a *App) Create(ctx context.Context, params CreateParams) (viewmodel.ViewModel, error) {
	var vm viewmodel.ViewModel
	err := a.create.Run(ctx, func(ctx context.Context) error {
		current := a.session.Session()
		if !current.Connected {
			return ErrNotConnected
		}
		if !params.valid() {
			return ErrInvalidParams
		}
		if a.cfg.Factory == (common.Address{}) {
			return ErrNoFactory
		}

		created, receipt, err := a.sender.CreateAll(ctx, common.HexToAddress(current.Account), a.cfg.Factory, contract.CreateParams{
			Name:        orDefault(params.Name, defaultTokenName),
			Symbol:      orDefault(params.Symbol, defaultTokenSymbol),
			Author:      params.Author,
			Description: params.Description,
			LogoURI:     strconv.Itoa(params.LogoID),
		})
		if err != nil {
			return err
		}

		block := receiptBlock(receipt)
		ref := model.ContractRef{TokenAddress: created.Token.Hex(), PoolAddress: created.Pool.Hex(), ChainID: current.ChainID}
		rec := model.DeploymentRecord{
			TokenAddress:      ref.TokenAddress,
			PoolAddress:       ref.PoolAddress,
			ChainID:           ref.ChainID,
			CreatedAtMs:       a.cfg.Now().UnixMilli(),
			Name:              orDefault(params.Name, defaultTokenName),
			Symbol:            orDefault(params.Symbol, defaultTokenSymbol),
			Author:            params.Author,
			Description:       params.Description,
			LogoID:            params.LogoID,
			PoolCreationBlock: block,
		}
		if _, err := a.history.Upsert(ctx, rec); err != nil {
			return err
		}
		vm, err = a.views.Load(ctx, ref, block)
		return err
	})
	if err != nil {
		return a.View(), err
	}
	a.logger.Info("token created", zap.String("token", vm.Contract.TokenAddress), zap.String("pool", vm.Contract.PoolAddress))
	return vm, nil
}

// Claim claims from the loaded pool. The local activity entry is written only
// after the receipt confirms and the pool state has been re-read.
func (a *App) Claim(ctx context.Context) (viewmodel.ViewModel, error) {
	var vm viewmodel.ViewModel
	err := a.claim.Run(ctx, func(ctx context.Context) error {
		current := a.session.Session()
		if !current.Connected {
			return ErrNotConnected
		}
		before, ok := a.views.Current()
		if !ok || before.Contract == nil {
			return ErrNoContract
		}
		if before.Pool != nil && !before.Pool.Remaining.IsPositive() {
			return ErrPoolEmpty
		}
		ref := *before.Contract
		pool := common.HexToAddress(ref.PoolAddress)

		receipt, err := a.sender.Claim(ctx, common.HexToAddress(current.Account), pool)
		if err != nil {
			return err
		}
		state, err := a.reader.ReadPoolState(ctx, pool)
		if err != nil {
			return err
		}

		event := a.claimEvent(ctx, receipt, pool, state.Decimals, current.Account, before.Eligible)
		if err := a.activity.AppendEvent(ctx, ref.PoolAddress, event); err != nil {
			return err
		}
		a.logger.Info("claim confirmed",
			zap.String("pool", ref.PoolAddress),
			zap.String("tx", event.TxHash),
			zap.Stringer("amount", event.Amount),
			zap.Stringer("remaining", state.Remaining),
		)

		vm, err = a.views.Load(ctx, ref, 0)
		return err
	})
	if err != nil {
		return a.View(), err
	}
	return vm, nil
}

// claimEvent builds the activity entry from the receipt's Claimed log, falling
// back to the displayed eligible amount when the log is missing.
func (a *App) claimEvent(ctx context.Context, receipt *types.Receipt, pool common.Address, decimals uint8, account string, eligible decimal.Decimal) model.ClaimEvent {
	event := model.ClaimEvent{
		Claimer:     account,
		Amount:      eligible,
		TimestampMs: a.cfg.Now().UnixMilli(),
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receiptBlock(receipt),
	}
	topic := contract.ClaimedTopic()
	for _, log := range receipt.Logs {
		if log == nil || log.Address != pool || len(log.Topics) == 0 || log.Topics[0] != topic {
			continue
		}
		decoded, err := contract.DecodeClaimed(*log)
		if err != nil {
			a.logger.Warn("undecodable claim log", zap.String("tx", event.TxHash), zap.Error(err))
			break
		}
		event.Claimer = decoded.Claimer.Hex()
		event.Amount = contract.ToDecimal(decoded.Amount, decimals)
		event.LogIndex = uint64(decoded.LogIndex)
		break
	}
	if event.BlockNumber > 0 {
		if ts, err := a.chain.BlockTimestamp(ctx, event.BlockNumber); err == nil {
			event.TimestampMs = int64(ts) * 1000
		}
	}
	return event
}

// Activity returns the claim events for a pool, rescanning from fromBlock when refresh is set.
func (a *App) Activity(ctx context.Context, address string, fromBlock uint64, refresh bool) ([]model.ClaimEvent, error) {
	pool, err := contract.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if refresh {
		return a.activity.Backfill(ctx, pool.Hex(), fromBlock)
	}
	return a.activity.Events(ctx, pool.Hex(), fromBlock)
}

// Refresh recomputes stats for one history entry, or for all when token is empty.
func (a *App) Refresh(ctx context.Context, token string) (map[string]model.PoolStats, error) {
	out := make(map[string]model.PoolStats)
	err := a.refresh.Run(ctx, func(ctx context.Context) error {
		if token == "" {
			all, err := a.history.RefreshAll(ctx)
			for k, v := range all {
				out[k] = v
			}
			return err
		}
		list, err := a.history.List(ctx)
		if err != nil {
			return err
		}
		key := strings.ToLower(strings.TrimSpace(token))
		for _, rec := range list {
			if rec.Key() != key {
				continue
			}
			stats, err := a.history.RefreshStats(ctx, rec)
			out[key] = stats
			return err
		}
		return fmt.Errorf("token %s not in history", token)
	})
	return out, err
}

// ClearHistory removes every history entry.
func (a *App) ClearHistory(ctx context.Context) error {
	return a.clear.Run(ctx, a.history.Clear)
}

// Close releases the session and pending status timers.
func (a *App) Close() {
	for _, action := range a.Actions() {
		action.Close()
	}
	a.session.Close()
}

func receiptBlock(receipt *types.Receipt) uint64 {
	if receipt == nil || receipt.BlockNumber == nil {
		return 0
	}
	return receipt.BlockNumber.Uint64()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
