package contract_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"tokenclaim/internal/contract"
	"tokenclaim/internal/contract/contracttest"
)

func TestDecodeClaimed(t *testing.T) {
	claimer := common.HexToAddress("0x1111111111111111111111111111111111111111")
	log := contracttest.ClaimedLog(poolAddr, claimer, contracttest.Units(100))
	log.BlockNumber = 12
	log.Index = 3

	decoded, err := contract.DecodeClaimed(*log)
	require.NoError(t, err)
	require.Equal(t, claimer, decoded.Claimer)
	require.Zero(t, decoded.Amount.Cmp(contracttest.Units(100)))
	require.EqualValues(t, 12, decoded.BlockNumber)
	require.EqualValues(t, 3, decoded.LogIndex)
}

func TestDecodeClaimedRejectsForeignTopic(t *testing.T) {
	log := contracttest.ClaimedLog(poolAddr, common.Address{}, contracttest.Units(1))
	log.Topics[0] = contract.CreatedTopic()
	_, err := contract.DecodeClaimed(*log)
	require.Error(t, err)

	log = contracttest.ClaimedLog(poolAddr, common.Address{}, contracttest.Units(1))
	log.Topics = log.Topics[:1]
	_, err = contract.DecodeClaimed(*log)
	require.Error(t, err)
}

func TestDecodeCreated(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000F0")
	creator := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := contracttest.CreatedLog(factory, tokenAddr, poolAddr, creator)

	created, err := contract.DecodeCreated(*log)
	require.NoError(t, err)
	require.Equal(t, tokenAddr, created.Token)
	require.Equal(t, poolAddr, created.Pool)
	require.Equal(t, creator, created.Creator)
}

func TestParseAddress(t *testing.T) {
	addr, err := contract.ParseAddress("  0x00000000000000000000000000000000000000a1 ")
	require.NoError(t, err)
	require.Equal(t, tokenAddr, addr)

	_, err = contract.ParseAddress("0x123")
	require.Error(t, err)
}
