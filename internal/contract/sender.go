package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tokenclaim/internal/apperr"
	"tokenclaim/internal/chain"
	"tokenclaim/internal/wallet"
)

// ReceiptSource looks up mined transactions.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SenderOptions tunes a TxSender.
type SenderOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *zap.Logger
}

// CreateParams are the factory deployment arguments.
type CreateParams struct {
	Name        string
	Symbol      string
	Author      string
	Description string
	LogoURI     string
}

// TxSender submits state-changing calls through the wallet and waits for confirmation.
type TxSender struct {
	provider wallet.Provider
	receipts ReceiptSource
	poll     time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewTxSender(provider wallet.Provider, receipts ReceiptSource, opts SenderOptions) *TxSender {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &TxSender{
		provider: provider,
		receipts: receipts,
		poll:     poll,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Claim calls claim() on the pool and returns the successful receipt.
func (s *TxSender) Claim(ctx context.Context, from common.Address, pool common.Address) (*types.Receipt, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := parsed.Pack("claim")
	if err != nil {
		return nil, fmt.Errorf("pack claim: %w", err)
	}
	return s.send(ctx, "claim", wallet.TxArgs{From: from, To: &pool, Data: data})
}

// CreateAll deploys a token and pool through the factory and returns the addresses from its Created event.
func (s *TxSender) CreateAll(ctx context.Context, from common.Address, factory common.Address, params CreateParams) (CreatedLog, *types.Receipt, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return CreatedLog{}, nil, fmt.Errorf("parse factory abi: %w", err)
	}
	data, err := parsed.Pack("createAll", params.Name, params.Symbol, params.Author, params.Description, params.LogoURI)
	if err != nil {
		return CreatedLog{}, nil, fmt.Errorf("pack createAll: %w", err)
	}
	receipt, err := s.send(ctx, "create", wallet.TxArgs{From: from, To: &factory, Data: data})
	if err != nil {
		return CreatedLog{}, nil, err
	}

	topic := CreatedTopic()
	for _, log := range receipt.Logs {
		if log == nil || log.Address != factory || len(log.Topics) == 0 || log.Topics[0] != topic {
			continue
		}
		created, err := DecodeCreated(*log)
		if err != nil {
			return CreatedLog{}, receipt, &apperr.TransactionFailedError{Action: "create", TxHash: receipt.TxHash.Hex(), Err: err}
		}
		return created, receipt, nil
	}
	return CreatedLog{}, receipt, &apperr.TransactionFailedError{
		Action: "create",
		TxHash: receipt.TxHash.Hex(),
		Err:    errors.New("no Created event in receipt"),
	}
}

func (s *TxSender) send(ctx context.Context, action string, args wallet.TxArgs) (*types.Receipt, error) {
	var hash common.Hash
	if err := s.provider.Request(ctx, &hash, "eth_sendTransaction", args); err != nil {
		if code, ok := wallet.ErrorCode(err); ok && code == wallet.CodeUserRejected {
			err = fmt.Errorf("%w: %v", apperr.ErrUserRejected, err)
		}
		return nil, &apperr.TransactionFailedError{Action: action, Err: err}
	}
	s.logger.Info("transaction submitted", zap.String("action", action), zap.String("hash", hash.Hex()))

	receipt, err := s.WaitReceipt(ctx, hash)
	if err != nil {
		return nil, &apperr.TransactionFailedError{Action: action, TxHash: hash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &apperr.TransactionFailedError{Action: action, TxHash: hash.Hex(), Err: errors.New("execution reverted")}
	}
	s.logger.Info("transaction confirmed",
		zap.String("action", action),
		zap.String("hash", hash.Hex()),
		zap.Stringer("block", receipt.BlockNumber),
	)
	return receipt, nil
}

// WaitReceipt polls until the transaction is mined, bounded by the sender timeout.
func (s *TxSender) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := chain.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			r, err := s.receipts.TransactionReceipt(ctx, hash)
			if err == nil && r != nil {
				receipt = r
				return nil
			}
			if err != nil && !errors.Is(err, ethereum.NotFound) {
				s.logger.Debug("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
	return receipt, err
}
