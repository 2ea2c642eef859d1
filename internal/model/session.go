package model

// Session is the wallet connection state owned by the chain session.
type Session struct {
	Account   string `json:"account,omitempty"`
	ChainID   uint64 `json:"chain_id,omitempty"`
	Connected bool   `json:"connected"`
}

// WrongNetwork reports whether a known chain differs from the expected one.
func (s Session) WrongNetwork(expected uint64) bool {
	return s.ChainID != 0 && s.ChainID != expected
}

// ContractRef identifies a token and its claim pool on a chain.
type ContractRef struct {
	TokenAddress string `json:"token"`
	PoolAddress  string `json:"pool"`
	ChainID      uint64 `json:"chain_id"`
}
