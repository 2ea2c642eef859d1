// Package history keeps the list of known deployments and their refreshable stats.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenclaim/internal/activity"
	"tokenclaim/internal/apperr"
	"tokenclaim/internal/model"
	"tokenclaim/internal/storage"
)

const refreshConcurrency = 4

// PoolReader is the contract surface needed to compute stats.
type PoolReader interface {
	ReadPoolState(ctx context.Context, pool common.Address) (model.PoolState, error)
	TotalSupply(ctx context.Context, token common.Address) (decimal.Decimal, error)
}

// ActivitySource yields claim events, backfilling when the cache is empty.
type ActivitySource interface {
	Events(ctx context.Context, address string, fromBlock uint64) ([]model.ClaimEvent, error)
}

// StatsUpdate is published whenever an entry's stats snapshot changes.
type StatsUpdate struct {
	Key   string
	Stats model.PoolStats
}

// Registry is the single writer of the tc.history key.
type Registry struct {
	store    storage.Store
	reader   PoolReader
	activity ActivitySource
	logger   *zap.Logger

	mu    sync.Mutex
	stats map[string]model.PoolStats
	gens  map[string]uint64
	feed  event.Feed
}

func NewRegistry(store storage.Store, reader PoolReader, activity ActivitySource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:    store,
		reader:   reader,
		activity: activity,
		logger:   logger,
		stats:    make(map[string]model.PoolStats),
		gens:     make(map[string]uint64),
	}
}

// Upsert replaces any record with the same lowercase token address and puts rec first.
func (r *Registry) Upsert(ctx context.Context, rec model.DeploymentRecord) ([]model.DeploymentRecord, error) {
	if rec.Key() == "" {
		return nil, fmt.Errorf("token address is required")
	}
	if rec.PoolAddress == "" {
		rec.PoolAddress = rec.TokenAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	next := make([]model.DeploymentRecord, 0, len(current)+1)
	next = append(next, rec)
	for _, existing := range current {
		if existing.Key() != rec.Key() {
			next = append(next, existing)
		}
	}
	if err := storage.SaveJSON(ctx, r.store, storage.HistoryKey, next); err != nil {
		return nil, err
	}
	return next, nil
}

// List returns the records, most recent first.
func (r *Registry) List(ctx context.Context) ([]model.DeploymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

// Clear empties the persisted list and forgets all stats. Refreshes still
// running are superseded and do not publish.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storage.Remove(ctx, r.store, storage.HistoryKey); err != nil {
		return err
	}
	r.stats = make(map[string]model.PoolStats)
	for key := range r.gens {
		r.gens[key]++
	}
	return nil
}

// Stats returns the latest snapshot for a token address.
func (r *Registry) Stats(token string) (model.PoolStats, bool) {
	key := model.DeploymentRecord{TokenAddress: token}.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.stats[key]
	return stats, ok
}

// SubscribeStats delivers every published snapshot.
func (r *Registry) SubscribeStats(ch chan<- StatsUpdate) event.Subscription {
	return r.feed.Subscribe(ch)
}

// RefreshStats reads pool state, token supply and claim activity for rec.
// A Loading snapshot is published first; the final snapshot always clears Loading
// and leaves numeric fields unset on failure. A refresh overtaken by a newer one
// for the same token, or by Clear, publishes nothing and returns apperr.ErrStale.
func (r *Registry) RefreshStats(ctx context.Context, rec model.DeploymentRecord) (model.PoolStats, error) {
	key := rec.Key()
	if !common.IsHexAddress(rec.TokenAddress) {
		return model.PoolStats{}, fmt.Errorf("invalid token address: %s", rec.TokenAddress)
	}
	poolAddress := rec.PoolAddress
	if poolAddress == "" {
		poolAddress = rec.TokenAddress
	}
	if !common.IsHexAddress(poolAddress) {
		return model.PoolStats{}, fmt.Errorf("invalid pool address: %s", poolAddress)
	}

	r.mu.Lock()
	r.gens[key]++
	gen := r.gens[key]
	loading := r.stats[key]
	loading.Loading = true
	loading.Error = ""
	r.mu.Unlock()
	r.publish(key, gen, loading)

	var (
		state  model.PoolState
		supply decimal.Decimal
		events []model.ClaimEvent
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		state, err = r.reader.ReadPoolState(groupCtx, common.HexToAddress(poolAddress))
		return err
	})
	group.Go(func() error {
		var err error
		supply, err = r.reader.TotalSupply(groupCtx, common.HexToAddress(rec.TokenAddress))
		return err
	})
	group.Go(func() error {
		var err error
		events, err = r.activity.Events(groupCtx, poolAddress, rec.PoolCreationBlock)
		return err
	})
	if err := group.Wait(); err != nil {
		r.logger.Warn("refresh stats failed", zap.String("token", rec.TokenAddress), zap.Error(err))
		failed := model.PoolStats{Loading: false, Error: err.Error()}
		if !r.publish(key, gen, failed) {
			return failed, apperr.ErrStale
		}
		return failed, err
	}

	claimCount := state.ClaimCount
	unique := activity.UniqueClaimers(events)
	stats := model.PoolStats{
		Remaining:      &state.Remaining,
		ClaimedTotal:   &state.ClaimedTotal,
		TotalSupply:    &supply,
		ClaimCount:     &claimCount,
		UniqueClaimers: &unique,
	}
	if !r.publish(key, gen, stats) {
		r.logger.Debug("discarding superseded stats", zap.String("token", rec.TokenAddress), zap.Uint64("generation", gen))
		return stats, apperr.ErrStale
	}
	return stats, nil
}

// RefreshAll refreshes every record with bounded concurrency. Per-entry failures
// are reported in the returned snapshots rather than as an error.
func (r *Registry) RefreshAll(ctx context.Context) (map[string]model.PoolStats, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]model.PoolStats, len(records))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(refreshConcurrency)
	for i, rec := range records {
		i, rec := i, rec
		group.Go(func() error {
			stats, err := r.RefreshStats(groupCtx, rec)
			if err != nil && errors.Is(err, context.Canceled) {
				return err
			}
			results[i] = stats
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]model.PoolStats, len(records))
	for i, rec := range records {
		out[rec.Key()] = results[i]
	}
	return out, nil
}

// publish stores and announces stats unless gen is no longer current for key.
func (r *Registry) publish(key string, gen uint64, stats model.PoolStats) bool {
	r.mu.Lock()
	if r.gens[key] != gen {
		r.mu.Unlock()
		return false
	}
	r.stats[key] = stats
	r.mu.Unlock()
	r.feed.Send(StatsUpdate{Key: key, Stats: stats})
	return true
}

// loadLocked decodes the persisted list record by record, so one malformed
// entry does not cost the others.
func (r *Registry) loadLocked(ctx context.Context) ([]model.DeploymentRecord, error) {
	var raw []json.RawMessage
	if _, err := storage.LoadJSON(ctx, r.store, storage.HistoryKey, &raw); err != nil {
		var storeErr *apperr.StorageError
		if !errors.As(err, &storeErr) || storeErr.Op != "decode" {
			return nil, err
		}
		r.logger.Warn("discarding corrupt history", zap.Error(err))
		raw = nil
	}

	records := make([]model.DeploymentRecord, 0, len(raw))
	for i, item := range raw {
		var rec model.DeploymentRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			r.logger.Warn("skip malformed history entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		if rec.Key() == "" {
			r.logger.Warn("skip history entry without token", zap.Int("index", i))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
