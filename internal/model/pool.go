package model

import "github.com/shopspring/decimal"

// PoolState is a normalized snapshot of the claim pool contract.
type PoolState struct {
	Remaining    decimal.Decimal `json:"remaining"`
	ClaimAmount  decimal.Decimal `json:"claim_amount"`
	ClaimCount   uint64          `json:"claim_count"`
	ClaimedTotal decimal.Decimal `json:"claimed_total"`
	TokenAddress string          `json:"token"`
	Decimals     uint8           `json:"decimals"`
}

// PoolStats holds refreshable statistics for a history entry. Nil fields are unset.
type PoolStats struct {
	Remaining      *decimal.Decimal `json:"remaining,omitempty"`
	ClaimedTotal   *decimal.Decimal `json:"claimed_total,omitempty"`
	TotalSupply    *decimal.Decimal `json:"total_supply,omitempty"`
	ClaimCount     *uint64          `json:"claim_count,omitempty"`
	UniqueClaimers *int             `json:"unique_claimers,omitempty"`
	Loading        bool             `json:"loading"`
	Error          string           `json:"error,omitempty"`
}
