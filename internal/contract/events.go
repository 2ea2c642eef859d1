package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ClaimLog is a decoded Claimed event with its raw amount.
type ClaimLog struct {
	Claimer     common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// CreatedLog is a decoded factory Created event.
type CreatedLog struct {
	Token   common.Address
	Pool    common.Address
	Creator common.Address
}

// DecodeClaimed decodes Claimed(address indexed by, uint256 amount).
func DecodeClaimed(log types.Log) (ClaimLog, error) {
	parsed, err := PoolABI()
	if err != nil {
		return ClaimLog{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event := parsed.Events["Claimed"]
	topics, err := indexedTopics(event, log)
	if err != nil {
		return ClaimLog{}, err
	}

	var indexed struct {
		By common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), topics); err != nil {
		return ClaimLog{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return ClaimLog{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 1 {
		return ClaimLog{}, fmt.Errorf("unexpected claimed values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return ClaimLog{}, err
	}

	return ClaimLog{
		Claimer:     indexed.By,
		Amount:      amount,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

// DecodeCreated decodes Created(address indexed token, address indexed pool, address indexed creator).
func DecodeCreated(log types.Log) (CreatedLog, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return CreatedLog{}, fmt.Errorf("parse factory abi: %w", err)
	}
	event := parsed.Events["Created"]
	topics, err := indexedTopics(event, log)
	if err != nil {
		return CreatedLog{}, err
	}

	var out CreatedLog
	if err := abi.ParseTopics(&out, indexedArguments(event.Inputs), topics); err != nil {
		return CreatedLog{}, fmt.Errorf("parse topics: %w", err)
	}
	return out, nil
}

func indexedTopics(event abi.Event, log types.Log) ([]common.Hash, error) {
	want := len(indexedArguments(event.Inputs)) + 1
	if len(log.Topics) != want {
		return nil, fmt.Errorf("expected %d topics, got %d", want, len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return nil, fmt.Errorf("unexpected topic0 %s for %s", log.Topics[0].Hex(), event.Name)
	}
	return log.Topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
