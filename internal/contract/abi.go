package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const poolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "by", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Claimed",
    "type": "event"
  },
  {"inputs": [], "name": "remaining", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "claimAmount", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "claimCount", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "claimedTotal", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "claim", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

const tokenABIJSON = `[
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "author", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "description", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "logoURI", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const factoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"}
    ],
    "name": "Created",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "string", "name": "name", "type": "string"},
      {"internalType": "string", "name": "symbol", "type": "string"},
      {"internalType": "string", "name": "author", "type": "string"},
      {"internalType": "string", "name": "description", "type": "string"},
      {"internalType": "string", "name": "logoURI", "type": "string"}
    ],
    "name": "createAll",
    "outputs": [
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "address", "name": "pool", "type": "address"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

type lazyABI struct {
	source string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.source))
	})
	return l.parsed, l.err
}

var (
	poolABI    = &lazyABI{source: poolABIJSON}
	tokenABI   = &lazyABI{source: tokenABIJSON}
	factoryABI = &lazyABI{source: factoryABIJSON}
)

// PoolABI returns the parsed claim pool ABI.
func PoolABI() (abi.ABI, error) { return poolABI.get() }

// TokenABI returns the parsed token ABI including the optional metadata getters.
func TokenABI() (abi.ABI, error) { return tokenABI.get() }

// FactoryABI returns the parsed deployment factory ABI.
func FactoryABI() (abi.ABI, error) { return factoryABI.get() }

// ClaimedTopic is topic0 of Claimed(address,uint256).
func ClaimedTopic() common.Hash {
	parsed, err := PoolABI()
	if err != nil {
		panic(err)
	}
	return parsed.Events["Claimed"].ID
}

// CreatedTopic is topic0 of Created(address,address,address).
func CreatedTopic() common.Hash {
	parsed, err := FactoryABI()
	if err != nil {
		panic(err)
	}
	return parsed.Events["Created"].ID
}
