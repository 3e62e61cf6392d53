package domain

import "math/big"

// VaultInfo describes one pooled-capital vault. Asset and share quantities are
// smallest-unit integers (wei scale), so they are carried as big.Int.
//
// Vaults are provisioned out-of-band via configuration; the ledger only
// mutates TotalAssets and TotalShares through deposit and withdraw.
type VaultInfo struct {
	Address           string   `json:"address"`
	DepositToken      string   `json:"depositToken"`
	TotalAssets       *big.Int `json:"totalAssets"`
	TotalShares       *big.Int `json:"totalShares"`
	PerformanceFeeBps int64    `json:"performanceFeeBps"`
	ManagementFeeBps  int64    `json:"managementFeeBps"`
	MinDeposit        *big.Int `json:"minDeposit"`
	VaultCap          *big.Int `json:"vaultCap"` // zero means unbounded
}

// Clone returns a deep copy so callers cannot alias the stored big.Int values.
func (v VaultInfo) Clone() VaultInfo {
	out := v
	out.TotalAssets = cloneBig(v.TotalAssets)
	out.TotalShares = cloneBig(v.TotalShares)
	out.MinDeposit = cloneBig(v.MinDeposit)
	out.VaultCap = cloneBig(v.VaultCap)
	return out
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}
