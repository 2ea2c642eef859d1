package model

import "github.com/shopspring/decimal"

// TokenCapability describes which optional metadata calls a token exposes.
type TokenCapability int

const (
	CapabilityMinimal TokenCapability = iota
	CapabilityNamed
)

func (c TokenCapability) String() string {
	switch c {
	case CapabilityNamed:
		return "named"
	default:
		return "minimal"
	}
}

// TokenMeta captures ERC20 metadata plus the optional descriptive fields.
type TokenMeta struct {
	Address     string          `json:"address"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Decimals    uint8           `json:"decimals"`
	TotalSupply decimal.Decimal `json:"total_supply"`
	Author      string          `json:"author,omitempty"`
	Description string          `json:"description,omitempty"`
	LogoURI     string          `json:"logo_uri,omitempty"`
	Capability  TokenCapability `json:"capability"`
}
