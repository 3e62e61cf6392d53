package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// VaultService defines what the vault handler needs from the share ledger.
type VaultService interface {
	List(ctx context.Context) ([]domain.VaultInfo, error)
	Get(ctx context.Context, address string) (domain.VaultInfo, error)
	ShareBalance(ctx context.Context, address, principal string) (*big.Int, error)
	Deposit(ctx context.Context, vaultAddress, principal string, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, vaultAddress, principal string, shares *big.Int) (*big.Int, error)
}

// VaultHandler serves vault ledger endpoints. Big integer quantities cross
// the wire as decimal strings so JavaScript clients never lose precision.
type VaultHandler struct {
	vaults VaultService
	logger *slog.Logger
}

func NewVaultHandler(vaults VaultService, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{vaults: vaults, logger: logger}
}

// vaultView is the wire representation of a vault.
type vaultView struct {
	Address           string `json:"address"`
	DepositToken      string `json:"depositToken"`
	TotalAssets       string `json:"totalAssets"`
	TotalShares       string `json:"totalShares"`
	PerformanceFeeBps int64  `json:"performanceFeeBps"`
	ManagementFeeBps  int64  `json:"managementFeeBps"`
	MinDeposit        string `json:"minDeposit"`
	VaultCap          string `json:"vaultCap"`
}

func toVaultView(v domain.VaultInfo) vaultView {
	return vaultView{
		Address:           v.Address,
		DepositToken:      v.DepositToken,
		TotalAssets:       bigString(v.TotalAssets),
		TotalShares:       bigString(v.TotalShares),
		PerformanceFeeBps: v.PerformanceFeeBps,
		ManagementFeeBps:  v.ManagementFeeBps,
		MinDeposit:        bigString(v.MinDeposit),
		VaultCap:          bigString(v.VaultCap),
	}
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

// parseQuantity parses a positive decimal string into a big.Int.
func parseQuantity(s string) (*big.Int, bool) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok || x.Sign() <= 0 {
		return nil, false
	}
	return x, true
}

// ListVaults returns all configured vaults.
// GET /api/vaults
func (h *VaultHandler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.vaults.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list vaults failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	views := make([]vaultView, 0, len(vaults))
	for _, v := range vaults {
		views = append(views, toVaultView(v))
	}
	writeData(w, http.StatusOK, views)
}

// GetVault returns one vault by address.
// GET /api/vaults/{address}
func (h *VaultHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing vault address")
		return
	}

	vault, err := h.vaults.Get(r.Context(), address)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, toVaultView(vault))
}

// GetBalance returns a principal's share balance in one vault.
// GET /api/vaults/{address}/balance/{principal}
func (h *VaultHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	principal := pathParam(r, "principal")
	if address == "" || principal == "" {
		writeError(w, http.StatusBadRequest, "missing vault address or principal")
		return
	}

	shares, err := h.vaults.ShareBalance(r.Context(), address, principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"vault":     address,
		"principal": principal,
		"shares":    bigString(shares),
	})
}

type depositRequest struct {
	Principal string `json:"principal"`
	Amount    string `json:"amount"`
}

// Deposit credits an asset deposit and mints shares.
// POST /api/vaults/{address}/deposit
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing vault address")
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, ok := parseQuantity(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	shares, err := h.vaults.Deposit(r.Context(), address, req.Principal, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"vault":        address,
		"principal":    req.Principal,
		"deposited":    amount.String(),
		"sharesMinted": shares.String(),
	})
}

type withdrawRequest struct {
	Principal string `json:"principal"`
	Shares    string `json:"shares"`
}

// Withdraw burns shares and pays out the proportional assets.
// POST /api/vaults/{address}/withdraw
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing vault address")
		return
	}

	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shares, ok := parseQuantity(req.Shares)
	if !ok {
		writeError(w, http.StatusBadRequest, "shares must be a positive decimal string")
		return
	}

	assets, err := h.vaults.Withdraw(r.Context(), address, req.Principal, shares)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"vault":        address,
		"principal":    req.Principal,
		"sharesBurned": shares.String(),
		"assetsPaid":   assets.String(),
	})
}
