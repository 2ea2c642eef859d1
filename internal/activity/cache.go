// Package activity caches claim events per pool address in durable storage.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/model"
	"tokenclaim/internal/scan"
	"tokenclaim/internal/storage"
)

// DecimalsSource resolves the precision used to scale claim amounts of a pool.
type DecimalsSource interface {
	PoolDecimals(ctx context.Context, pool common.Address) (uint8, error)
}

// Options tunes a Cache.
type Options struct {
	Scan   scan.Config
	Logger *zap.Logger
}

// Cache is the single writer of tc.activity.* keys.
type Cache struct {
	store    storage.Store
	scanner  *scan.Scanner
	decimals DecimalsSource
	logger   *zap.Logger

	mu     sync.Mutex
	events map[string][]model.ClaimEvent
	group  singleflight.Group
}

func New(store storage.Store, source scan.LogSource, decimals DecimalsSource, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:    store,
		scanner:  scan.NewScanner(source, opts.Scan, logger),
		decimals: decimals,
		logger:   logger,
		events:   make(map[string][]model.ClaimEvent),
	}
}

// GetCachedEvents returns the persisted events for address, or an empty slice.
func (c *Cache) GetCachedEvents(ctx context.Context, address string) ([]model.ClaimEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.loadLocked(ctx, address)
	if err != nil {
		return nil, err
	}
	return cloneEvents(events), nil
}

// Events returns cached events, running a backfill when nothing is cached yet.
func (c *Cache) Events(ctx context.Context, address string, fromBlock uint64) ([]model.ClaimEvent, error) {
	events, err := c.GetCachedEvents(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		return events, nil
	}
	return c.Backfill(ctx, address, fromBlock)
}

// Backfill scans Claimed logs from fromBlock to head and stores the result,
// keeping cached events whose transaction the scan did not see. Concurrent
// calls for one address share a scan.
func (c *Cache) Backfill(ctx context.Context, address string, fromBlock uint64) ([]model.ClaimEvent, error) {
	key := storage.ActivityKey(address)
	value, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.backfill(ctx, address, fromBlock)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight backfill", zap.String("address", address))
	}
	return cloneEvents(value.([]model.ClaimEvent)), nil
}

func (c *Cache) backfill(ctx context.Context, address string, fromBlock uint64) ([]model.ClaimEvent, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid pool address: %s", address)
	}
	pool := common.HexToAddress(address)

	decimals, err := c.decimals.PoolDecimals(ctx, pool)
	if err != nil {
		return nil, err
	}
	entries, err := c.scanner.Scan(ctx, scan.Query{
		FromBlock: fromBlock,
		Addresses: []common.Address{pool},
		Topic0:    []common.Hash{contract.ClaimedTopic()},
	})
	if err != nil {
		return nil, fmt.Errorf("scan claims: %w", err)
	}

	events := make([]model.ClaimEvent, 0, len(entries))
	for _, entry := range entries {
		claim, err := contract.DecodeClaimed(entry.Log)
		if err != nil {
			c.logger.Warn("skip undecodable claim log",
				zap.String("tx_hash", entry.Log.TxHash.Hex()),
				zap.Uint("log_index", entry.Log.Index),
				zap.Error(err),
			)
			continue
		}
		events = append(events, model.ClaimEvent{
			Claimer:     claim.Claimer.Hex(),
			Amount:      contract.ToDecimal(claim.Amount, decimals),
			TimestampMs: int64(entry.Timestamp) * 1000,
			TxHash:      claim.TxHash.Hex(),
			BlockNumber: claim.BlockNumber,
			LogIndex:    uint64(claim.LogIndex),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cached, err := c.loadLocked(ctx, address)
	if err != nil {
		return nil, err
	}
	events = mergeLocal(events, cached)
	sortEvents(events)
	key := storage.ActivityKey(address)
	if err := storage.SaveJSON(ctx, c.store, key, events); err != nil {
		return nil, err
	}
	c.events[key] = events

	c.logger.Info("activity backfilled",
		zap.String("address", address),
		zap.Uint64("from_block", fromBlock),
		zap.Int("events", len(events)),
	)
	return events, nil
}

// AppendEvent records a locally observed claim without rescanning. An event
// whose transaction hash is already cached is ignored.
func (c *Cache) AppendEvent(ctx context.Context, address string, event model.ClaimEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.loadLocked(ctx, address)
	if err != nil {
		return err
	}
	if event.TxHash != "" {
		for _, existing := range events {
			if strings.EqualFold(existing.TxHash, event.TxHash) {
				c.logger.Debug("claim already cached", zap.String("tx_hash", event.TxHash))
				return nil
			}
		}
	}

	next := append(cloneEvents(events), event)
	sortEvents(next)
	key := storage.ActivityKey(address)
	if err := storage.SaveJSON(ctx, c.store, key, next); err != nil {
		return err
	}
	c.events[key] = next
	return nil
}

func (c *Cache) loadLocked(ctx context.Context, address string) ([]model.ClaimEvent, error) {
	key := storage.ActivityKey(address)
	if events, ok := c.events[key]; ok {
		return events, nil
	}

	var events []model.ClaimEvent
	if _, err := storage.LoadJSON(ctx, c.store, key, &events); err != nil {
		var storeErr *apperr.StorageError
		if !errors.As(err, &storeErr) || storeErr.Op != "decode" {
			return nil, err
		}
		c.logger.Warn("discarding corrupt activity cache", zap.String("key", key), zap.Error(err))
		events = nil
	}
	if events == nil {
		events = []model.ClaimEvent{}
	}
	c.events[key] = events
	return events, nil
}

// mergeLocal appends the cached events whose transaction hash is absent from scanned.
func mergeLocal(scanned, cached []model.ClaimEvent) []model.ClaimEvent {
	seen := make(map[string]struct{}, len(scanned))
	for _, event := range scanned {
		seen[strings.ToLower(event.TxHash)] = struct{}{}
	}
	for _, event := range cached {
		if event.TxHash != "" {
			if _, ok := seen[strings.ToLower(event.TxHash)]; ok {
				continue
			}
		}
		scanned = append(scanned, event)
	}
	return scanned
}

// sortEvents orders by timestamp and keeps chain order for equal timestamps.
func sortEvents(events []model.ClaimEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampMs < events[j].TimestampMs
	})
}

func cloneEvents(events []model.ClaimEvent) []model.ClaimEvent {
	out := make([]model.ClaimEvent, len(events))
	copy(out, events)
	return out
}

// UniqueClaimers counts distinct claimer addresses, ignoring case.
func UniqueClaimers(events []model.ClaimEvent) int {
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		seen[strings.ToLower(event.Claimer)] = struct{}{}
	}
	return len(seen)
}
