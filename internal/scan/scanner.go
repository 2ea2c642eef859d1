// Package scan walks block ranges and collects filtered logs with their block timestamps.
package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// LogSource is the chain surface a scan needs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Config bounds a scan.
type Config struct {
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Query selects logs. A zero ToBlock means the current head.
type Query struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topic0    []common.Hash
}

// Entry is a log paired with its block timestamp in seconds.
type Entry struct {
	Log       types.Log
	Timestamp uint64
}

// Scanner fetches logs range by range.
type Scanner struct {
	source LogSource
	cfg    Config
	logger *zap.Logger
}

func NewScanner(source LogSource, cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{source: source, cfg: cfg, logger: logger}
}

// Scan returns matching logs in chain order, each log at most once.
// Logs flagged as removed by a reorg are skipped.
func (s *Scanner) Scan(ctx context.Context, q Query) ([]Entry, error) {
	if s.source == nil {
		return nil, fmt.Errorf("log source is nil")
	}

	to := q.ToBlock
	if to == 0 {
		err := WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			to, err = s.source.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("get latest block: %w", err)
		}
	}
	if q.FromBlock > to {
		s.logger.Debug("nothing to scan", zap.Uint64("from", q.FromBlock), zap.Uint64("to", to))
		return []Entry{}, nil
	}

	ranges, err := SplitRange(q.FromBlock, to, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	entries := make([]Entry, 0)
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logs, err := s.filterLogs(ctx, blockRange, q)
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		for _, log := range logs {
			if log.Removed || markSeen(seen, log) {
				continue
			}
			ts, err := s.blockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			entries = append(entries, Entry{Log: log, Timestamp: ts})
		}
		s.logger.Debug("range scanned",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
		)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Log, entries[j].Log
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.Index < b.Index
	})
	return entries, nil
}

func (s *Scanner) filterLogs(ctx context.Context, r BlockRange, q Query) ([]types.Log, error) {
	var logs []types.Log
	err := WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.source.FilterLogs(ctx, r.From, r.To, q.Addresses, q.Topic0)
		if err != nil {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
		}
		return err
	})
	return logs, err
}

func (s *Scanner) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = s.source.BlockTimestamp(ctx, number)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", number))
		}
		return err
	})
	return ts, err
}

func markSeen(seen map[string]struct{}, log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := seen[id]; ok {
		return true
	}
	seen[id] = struct{}{}
	return false
}
