package viewmodel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenclaim/internal/activity"
	"tokenclaim/internal/apperr"
	"tokenclaim/internal/model"
)

// Sparkline view box used by the claim chart.
const (
	SparklineWidth  = 120
	SparklineHeight = 56
	SparklineMargin = 6
)

// ContractReader is the read surface the assembler composes.
type ContractReader interface {
	ReadPoolState(ctx context.Context, pool common.Address) (model.PoolState, error)
	ReadTokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// ActivitySource returns the claim history for a pool.
type ActivitySource interface {
	Events(ctx context.Context, address string, fromBlock uint64) ([]model.ClaimEvent, error)
}

// SessionSource exposes the current wallet session.
type SessionSource interface {
	Session() model.Session
}

// ViewModel is everything presentation needs for a loaded contract.
type ViewModel struct {
	Session        model.Session      `json:"session"`
	WrongNetwork   bool               `json:"wrong_network"`
	Contract       *model.ContractRef `json:"contract,omitempty"`
	Token          *model.TokenMeta   `json:"token,omitempty"`
	Pool           *model.PoolState   `json:"pool,omitempty"`
	Progress       int                `json:"progress"`
	Eligible       decimal.Decimal    `json:"eligible"`
	Events         []model.ClaimEvent `json:"events"`
	UniqueClaimers int                `json:"unique_claimers"`
	Series         []decimal.Decimal  `json:"series"`
	Sparkline      []Point            `json:"sparkline"`
}

// Assemble derives a ViewModel from already fetched values. token, pool and ref may be nil.
func Assemble(session model.Session, expectedChainID uint64, ref *model.ContractRef, token *model.TokenMeta, pool *model.PoolState, events []model.ClaimEvent) ViewModel {
	vm := ViewModel{
		Session:      session,
		WrongNetwork: session.WrongNetwork(expectedChainID),
		Contract:     ref,
		Token:        token,
		Pool:         pool,
		Eligible:     decimal.Zero,
		Events:       events,
		Series:       []decimal.Decimal{},
	}
	if vm.Events == nil {
		vm.Events = []model.ClaimEvent{}
	}
	vm.UniqueClaimers = activity.UniqueClaimers(vm.Events)

	total := decimal.Zero
	if token != nil {
		total = token.TotalSupply
	}
	if pool != nil {
		vm.Progress = ProgressPercent(total, pool.Remaining)
		vm.Eligible = EligibleAmount(pool.ClaimAmount, pool.Remaining)
		vm.Series = Series(total, pool.Remaining, vm.Events)
	}
	vm.Sparkline = SparklinePoints(toFloats(vm.Series), total.InexactFloat64(), SparklineWidth, SparklineHeight, SparklineMargin)
	return vm
}

// Assembler loads contracts and keeps the latest view. Each Load takes a new
// generation; a load that finishes after a newer one started returns apperr.ErrStale.
type Assembler struct {
	session  SessionSource
	reader   ContractReader
	activity ActivitySource
	expected uint64
	logger   *zap.Logger

	gen     atomic.Uint64
	mu      sync.RWMutex
	current *ViewModel
}

func NewAssembler(session SessionSource, reader ContractReader, activity ActivitySource, expectedChainID uint64, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		session:  session,
		reader:   reader,
		activity: activity,
		expected: expectedChainID,
		logger:   logger,
	}
}

// Load reads token, pool and activity for ref concurrently and assembles the view.
func (a *Assembler) Load(ctx context.Context, ref model.ContractRef, fromBlock uint64) (ViewModel, error) {
	gen := a.gen.Add(1)
	if !common.IsHexAddress(ref.TokenAddress) {
		return ViewModel{}, fmt.Errorf("invalid token address %q", ref.TokenAddress)
	}
	if ref.PoolAddress == "" {
		ref.PoolAddress = ref.TokenAddress
	}
	if !common.IsHexAddress(ref.PoolAddress) {
		return ViewModel{}, fmt.Errorf("invalid pool address %q", ref.PoolAddress)
	}

	var (
		token  model.TokenMeta
		pool   model.PoolState
		events []model.ClaimEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		token, err = a.reader.ReadTokenMeta(gctx, common.HexToAddress(ref.TokenAddress))
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = a.reader.ReadPoolState(gctx, common.HexToAddress(ref.PoolAddress))
		return err
	})
	g.Go(func() error {
		var err error
		events, err = a.activity.Events(gctx, ref.PoolAddress, fromBlock)
		return err
	})
	err := g.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen.Load() != gen {
		a.logger.Debug("discarding superseded load", zap.String("token", ref.TokenAddress), zap.Uint64("generation", gen))
		return ViewModel{}, apperr.ErrStale
	}
	if err != nil {
		return ViewModel{}, err
	}

	vm := Assemble(a.session.Session(), a.expected, &ref, &token, &pool, events)
	a.current = &vm
	return vm, nil
}

// Invalidate supersedes any in-flight load and drops the current view.
func (a *Assembler) Invalidate() {
	a.mu.Lock()
	a.gen.Add(1)
	a.current = nil
	a.mu.Unlock()
}

// Current returns the latest assembled view, refreshed with the live session.
func (a *Assembler) Current() (ViewModel, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return Assemble(a.session.Session(), a.expected, nil, nil, nil, nil), false
	}
	vm := *a.current
	vm.Session = a.session.Session()
	vm.WrongNetwork = vm.Session.WrongNetwork(a.expected)
	return vm, true
}
