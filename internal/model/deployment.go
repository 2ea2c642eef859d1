package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DeploymentRecord is a token and pool pair the user created or loaded.
type DeploymentRecord struct {
	TokenAddress      string `json:"token"`
	PoolAddress       string `json:"pool"`
	ChainID           uint64 `json:"chainId"`
	CreatedAtMs       int64  `json:"createdAt"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Author            string `json:"author"`
	Description       string `json:"description"`
	LogoID            int    `json:"logoId"`
	PoolCreationBlock uint64 `json:"poolCreationBlock"`
}

// Key returns the normalized identity used for deduplication.
func (r DeploymentRecord) Key() string {
	return strings.ToLower(strings.TrimSpace(r.TokenAddress))
}

// Ref returns the contract reference for the record.
func (r DeploymentRecord) Ref() ContractRef {
	return ContractRef{TokenAddress: r.TokenAddress, PoolAddress: r.PoolAddress, ChainID: r.ChainID}
}

// UnmarshalJSON decodes a record written by any earlier layout, tolerating missing fields.
func (r *DeploymentRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		TokenAddress      string      `json:"token"`
		PoolAddress       string      `json:"pool"`
		ChainID           json.Number `json:"chainId"`
		CreatedAt         json.Number `json:"createdAt"`
		Name              string      `json:"name"`
		Symbol            string      `json:"symbol"`
		Author            string      `json:"author"`
		Description       string      `json:"description"`
		LogoID            interface{} `json:"logoId"`
		PoolCreationBlock json.Number `json:"poolCreationBlock"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := DeploymentRecord{
		TokenAddress:      raw.TokenAddress,
		PoolAddress:       raw.PoolAddress,
		ChainID:           parseFlexUint(raw.ChainID),
		CreatedAtMs:       int64(parseFlexUint(raw.CreatedAt)),
		Name:              raw.Name,
		Symbol:            raw.Symbol,
		Author:            raw.Author,
		Description:       raw.Description,
		PoolCreationBlock: parseFlexUint(raw.PoolCreationBlock),
	}
	if out.PoolAddress == "" {
		out.PoolAddress = out.TokenAddress
	}

	switch v := raw.LogoID.(type) {
	case float64:
		out.LogoID = int(v)
	case string:
		if id, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			out.LogoID = id
		}
	}

	*r = out
	return nil
}
